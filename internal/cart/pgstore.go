package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// totalColumns maps selectable totals columns to the cart field they fill.
var totalColumns = map[string]func(*Cart) *int64{
	"subtotal":        func(c *Cart) *int64 { return &c.Subtotal },
	"tax_total":       func(c *Cart) *int64 { return &c.TaxTotal },
	"shipping_total":  func(c *Cart) *int64 { return &c.ShippingTotal },
	"discount_total":  func(c *Cart) *int64 { return &c.DiscountTotal },
	"gift_card_total": func(c *Cart) *int64 { return &c.GiftCardTotal },
	"total":           func(c *Cart) *int64 { return &c.Total },
}

// PGStore is the Postgres-backed cart, region and payment session store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a store over the provided pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Retrieve loads a cart with the totals columns and relations named in cfg.
func (s *PGStore) Retrieve(ctx context.Context, id string, cfg RetrieveConfig) (Cart, error) {
	if s == nil || s.pool == nil {
		return Cart{}, errors.New("cart store not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Cart{}, ErrNotFound
	}

	var (
		c                 Cart
		customerID        pgtype.Text
		billingID, shipID pgtype.Text
		rawContext        []byte
	)
	columns := []string{"id", "region_id", "customer_id", "billing_address_id", "shipping_address_id", "context"}
	dest := []any{&c.ID, &c.RegionID, &customerID, &billingID, &shipID, &rawContext}
	for _, name := range cfg.Select {
		field, ok := totalColumns[name]
		if !ok {
			continue
		}
		columns = append(columns, name)
		dest = append(dest, field(&c))
	}
	query := fmt.Sprintf("SELECT %s FROM carts WHERE id = $1", strings.Join(columns, ", "))
	if err := s.pool.QueryRow(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, err
	}
	if len(rawContext) > 0 {
		if err := json.Unmarshal(rawContext, &c.Context); err != nil {
			return Cart{}, fmt.Errorf("decode cart context: %w", err)
		}
	}

	var err error
	if cfg.HasRelation("items") {
		if c.Items, err = s.lineItems(ctx, c.ID); err != nil {
			return Cart{}, err
		}
	}
	if cfg.HasRelation("billing_address") && billingID.Valid {
		if c.BillingAddress, err = s.address(ctx, billingID.String); err != nil {
			return Cart{}, err
		}
	}
	if cfg.HasRelation("shipping_address") && shipID.Valid {
		if c.ShippingAddress, err = s.address(ctx, shipID.String); err != nil {
			return Cart{}, err
		}
	}
	if cfg.HasRelation("customer") && customerID.Valid {
		if c.Customer, err = s.customer(ctx, customerID.String); err != nil {
			return Cart{}, err
		}
	}
	if cfg.HasRelation("region") {
		region, err := s.RetrieveRegion(ctx, c.RegionID)
		if err != nil {
			return Cart{}, err
		}
		c.Region = &region
	}
	if cfg.HasRelation("payment_sessions") {
		if c.PaymentSessions, err = s.paymentSessions(ctx, c.ID); err != nil {
			return Cart{}, err
		}
	}
	return c, nil
}

// RetrieveRegion loads a region by id.
func (s *PGStore) RetrieveRegion(ctx context.Context, id string) (Region, error) {
	var r Region
	err := s.pool.QueryRow(ctx, `SELECT id, name, currency_code FROM regions WHERE id = $1`, id).
		Scan(&r.ID, &r.Name, &r.CurrencyCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Region{}, fmt.Errorf("region %s: %w", id, ErrNotFound)
		}
		return Region{}, err
	}
	return r, nil
}

// UpsertSession creates the provider session for a cart, or resets the data of the
// existing one while it is still pending. A settled session is returned unchanged.
func (s *PGStore) UpsertSession(ctx context.Context, cartID, providerID string, data SessionData) (PaymentSession, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return PaymentSession{}, fmt.Errorf("encode session data: %w", err)
	}
	const q = `
INSERT INTO payment_sessions (id, cart_id, provider_id, status, data)
VALUES ($1, $2, $3, 'pending', $4)
ON CONFLICT (cart_id, provider_id)
DO UPDATE SET data = EXCLUDED.data, status = 'pending', updated_at = now()
WHERE payment_sessions.data->>'isPending' IS DISTINCT FROM 'false'
RETURNING id, cart_id, provider_id, status, data`
	ps, err := scanSession(s.pool.QueryRow(ctx, q, "ps_"+uuid.NewString(), cartID, providerID, payload))
	if !errors.Is(err, pgx.ErrNoRows) {
		return ps, err
	}
	// The existing session is settled and stays as it is.
	return scanSession(s.pool.QueryRow(ctx, `
SELECT id, cart_id, provider_id, status, data FROM payment_sessions
WHERE cart_id = $1 AND provider_id = $2`, cartID, providerID))
}

// UpdateSessionData replaces the data bag of a payment session.
func (s *PGStore) UpdateSessionData(ctx context.Context, sessionID string, data SessionData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE payment_sessions SET data = $2, updated_at = now() WHERE id = $1`, sessionID, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

func (s *PGStore) lineItems(ctx context.Context, cartID string) ([]LineItem, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, unit_price, quantity FROM line_items WHERE cart_id = $1 ORDER BY created_at, id`, cartID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LineItem, error) {
		var it LineItem
		err := row.Scan(&it.ID, &it.Title, &it.UnitPrice, &it.Quantity)
		return it, err
	})
}

func (s *PGStore) address(ctx context.Context, id string) (*Address, error) {
	var a Address
	err := s.pool.QueryRow(ctx, `
SELECT first_name, last_name, phone, address_1, address_2, city, province, postal_code, country_code
FROM addresses WHERE id = $1`, id).
		Scan(&a.FirstName, &a.LastName, &a.Phone, &a.Address1, &a.Address2, &a.City, &a.Province, &a.PostalCode, &a.CountryCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *PGStore) customer(ctx context.Context, id string) (*Customer, error) {
	var (
		c   Customer
		raw []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT id, email, phone, metadata FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Email, &c.Phone, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode customer metadata: %w", err)
		}
	}
	return &c, nil
}

func (s *PGStore) paymentSessions(ctx context.Context, cartID string) ([]PaymentSession, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, cart_id, provider_id, status, data
FROM payment_sessions WHERE cart_id = $1 ORDER BY created_at, id`, cartID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PaymentSession, error) {
		return scanSession(row)
	})
}

func scanSession(row pgx.Row) (PaymentSession, error) {
	var (
		ps  PaymentSession
		raw []byte
	)
	if err := row.Scan(&ps.ID, &ps.CartID, &ps.ProviderID, &ps.Status, &raw); err != nil {
		return PaymentSession{}, err
	}
	ps.Data = SessionData{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ps.Data); err != nil {
			return PaymentSession{}, fmt.Errorf("decode session data: %w", err)
		}
	}
	return ps, nil
}
