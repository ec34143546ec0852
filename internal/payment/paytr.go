package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/payment-paytr/internal/cart"
)

// Identifier is the provider id PayTR sessions are stored under.
const Identifier = "paytr"

const tracerName = "payment.PayTR"

// Deps are the host collaborators the PayTR provider relies on.
type Deps struct {
	Carts      cart.Retriever
	Totals     cart.TotalsCalculator
	Regions    cart.RegionRetriever
	Sessions   cart.SessionStore
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// PayTR implements Provider for the PayTR iFrame token flow.
type PayTR struct {
	merchant MerchantConfig
	carts    cart.Retriever
	totals   cart.TotalsCalculator
	regions  cart.RegionRetriever
	sessions cart.SessionStore
	client   tokenClient
	log      zerolog.Logger
}

var _ Provider = (*PayTR)(nil)

// NewPayTR validates the merchant configuration and wires the provider.
func NewPayTR(deps Deps, merchant MerchantConfig) (*PayTR, error) {
	if err := merchant.Validate(); err != nil {
		return nil, err
	}
	if deps.Carts == nil || deps.Totals == nil || deps.Regions == nil || deps.Sessions == nil {
		return nil, errors.New("paytr: cart, totals, region and session collaborators are required")
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	logger := zerolog.Nop()
	if deps.Logger != nil {
		logger = deps.Logger.With().Str("provider", Identifier).Logger()
	}
	return &PayTR{
		merchant: merchant,
		carts:    deps.Carts,
		totals:   deps.Totals,
		regions:  deps.Regions,
		sessions: deps.Sessions,
		client:   tokenClient{http: httpClient, endpoint: merchant.TokenEndpoint},
		log:      logger,
	}, nil
}

// MerchantOID derives the gateway-facing order id: the part of the cart id after the last underscore.
func MerchantOID(cartID string) string {
	if i := strings.LastIndex(cartID, "_"); i >= 0 {
		return cartID[i+1:]
	}
	return cartID
}

// Identifier returns the provider id.
func (p *PayTR) Identifier() string { return Identifier }

// IframeURL returns the hosted payment page for a checkout token.
func (p *PayTR) IframeURL(token string) string { return p.merchant.iframeURL(token) }

// CreatePayment seeds the data bag of a new pending session.
func (p *PayTR) CreatePayment(_ context.Context, c cart.Cart) (cart.SessionData, error) {
	return cart.SessionData{
		dataMerchantOID: MerchantOID(c.ID),
		dataIsPending:   true,
		dataStatus:      -1,
	}, nil
}

// GetStatus maps the stored gateway status onto the host status.
func (p *PayTR) GetStatus(_ context.Context, data cart.SessionData) (SessionStatus, error) {
	return MapStatus(data[dataStatus]), nil
}

// AuthorizePayment is settled by the callback, so it always reports authorized.
func (p *PayTR) AuthorizePayment(context.Context, cart.PaymentSession) (AuthorizeResult, error) {
	return AuthorizeResult{
		Status: StatusAuthorized,
		Data:   cart.SessionData{dataStatus: string(StatusAuthorized)},
	}, nil
}

// UpdatePayment overlays update onto current. Keys absent from update are preserved
// and neither input is modified.
func (p *PayTR) UpdatePayment(_ context.Context, current, update cart.SessionData) (cart.SessionData, error) {
	merged := current.Clone()
	for k, v := range update {
		merged[k] = v
	}
	return merged, nil
}

// CapturePayment has no gateway counterpart.
func (p *PayTR) CapturePayment(context.Context, cart.SessionData) (cart.SessionData, error) {
	return cart.SessionData{dataStatus: "captured"}, nil
}

// RefundPayment echoes the session data.
func (p *PayTR) RefundPayment(_ context.Context, data cart.SessionData, _ int64) (cart.SessionData, error) {
	return data, nil
}

// CancelPayment has no gateway counterpart.
func (p *PayTR) CancelPayment(context.Context, cart.SessionData) (cart.SessionData, error) {
	return cart.SessionData{dataStatus: "canceled"}, nil
}

// DeletePayment is a no-op; PayTR offers no deletion API.
func (p *PayTR) DeletePayment(context.Context, cart.PaymentSession) error {
	return nil
}

// RetrievePayment echoes the session data.
func (p *PayTR) RetrievePayment(_ context.Context, data cart.SessionData) (cart.SessionData, error) {
	return data, nil
}

// GetPaymentData returns the data bag of the session.
func (p *PayTR) GetPaymentData(_ context.Context, session cart.PaymentSession) (cart.SessionData, error) {
	return session.Data, nil
}
