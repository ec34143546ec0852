package cart

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested cart, region or payment session could not be located.
var ErrNotFound = errors.New("cart not found")

// SessionData is the provider-owned data bag persisted on a payment session.
type SessionData map[string]any

// Clone returns a shallow copy of the bag.
func (d SessionData) Clone() SessionData {
	out := make(SessionData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Address is a postal address attached to a cart.
type Address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	Address1    string `json:"address_1"`
	Address2    string `json:"address_2"`
	City        string `json:"city"`
	Province    string `json:"province"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
}

// Customer is the shopper that owns a cart.
type Customer struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Phone    string         `json:"phone"`
	Metadata map[string]any `json:"metadata"`
}

// Region carries the currency a cart is priced in.
type Region struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CurrencyCode string `json:"currency_code"`
}

// LineItem is a single cart line. UnitPrice is expressed in minor units.
type LineItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// PaymentSession links a cart to a payment provider.
type PaymentSession struct {
	ID         string      `json:"id"`
	CartID     string      `json:"cart_id"`
	ProviderID string      `json:"provider_id"`
	Status     string      `json:"status"`
	Data       SessionData `json:"data"`
}

// Cart is the aggregate handed to payment providers. Relations are only
// populated when requested through RetrieveConfig.
type Cart struct {
	ID              string           `json:"id"`
	RegionID        string           `json:"region_id"`
	Items           []LineItem       `json:"items"`
	BillingAddress  *Address         `json:"billing_address,omitempty"`
	ShippingAddress *Address         `json:"shipping_address,omitempty"`
	Customer        *Customer        `json:"customer,omitempty"`
	Region          *Region          `json:"region,omitempty"`
	PaymentSessions []PaymentSession `json:"payment_sessions"`
	Context         map[string]any   `json:"context"`

	Subtotal      int64 `json:"subtotal"`
	TaxTotal      int64 `json:"tax_total"`
	ShippingTotal int64 `json:"shipping_total"`
	DiscountTotal int64 `json:"discount_total"`
	GiftCardTotal int64 `json:"gift_card_total"`
	Total         int64 `json:"total"`
}

// RetrieveConfig selects the totals columns and relations loaded with a cart.
type RetrieveConfig struct {
	Select    []string
	Relations []string
}

// HasRelation reports whether the relation was requested.
func (c RetrieveConfig) HasRelation(name string) bool {
	for _, r := range c.Relations {
		if r == name {
			return true
		}
	}
	return false
}

// DefaultRetrieveConfig is the projection payment providers load carts with.
var DefaultRetrieveConfig = RetrieveConfig{
	Select: []string{
		"gift_card_total",
		"subtotal",
		"tax_total",
		"shipping_total",
		"discount_total",
		"total",
	},
	Relations: []string{
		"items",
		"discounts",
		"discounts.rule",
		"discounts.rule.valid_for",
		"gift_cards",
		"billing_address",
		"shipping_address",
		"region",
		"region.payment_providers",
		"payment_sessions",
		"customer",
	},
}

// Retriever loads carts by id.
type Retriever interface {
	Retrieve(ctx context.Context, id string, cfg RetrieveConfig) (Cart, error)
}

// RegionRetriever loads regions by id.
type RegionRetriever interface {
	RetrieveRegion(ctx context.Context, id string) (Region, error)
}

// TotalsCalculator computes the amount due for a cart in minor units.
type TotalsCalculator interface {
	Total(ctx context.Context, c Cart) (int64, error)
}

// SessionStore persists payment session data.
type SessionStore interface {
	UpsertSession(ctx context.Context, cartID, providerID string, data SessionData) (PaymentSession, error)
	UpdateSessionData(ctx context.Context, sessionID string, data SessionData) error
}
