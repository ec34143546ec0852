package payment

import (
	"context"

	"github.com/noah-isme/payment-paytr/internal/cart"
)

// SessionStatus is the host-facing state of a payment session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusAuthorized SessionStatus = "authorized"
	StatusError      SessionStatus = "error"
)

// AuthorizeResult is returned by AuthorizePayment.
type AuthorizeResult struct {
	Status SessionStatus    `json:"status"`
	Data   cart.SessionData `json:"data"`
}

// Provider is the capability set the host expects from a payment provider.
type Provider interface {
	Identifier() string
	CreatePayment(ctx context.Context, c cart.Cart) (cart.SessionData, error)
	GetStatus(ctx context.Context, data cart.SessionData) (SessionStatus, error)
	AuthorizePayment(ctx context.Context, session cart.PaymentSession) (AuthorizeResult, error)
	UpdatePayment(ctx context.Context, current, update cart.SessionData) (cart.SessionData, error)
	CapturePayment(ctx context.Context, data cart.SessionData) (cart.SessionData, error)
	RefundPayment(ctx context.Context, data cart.SessionData, amount int64) (cart.SessionData, error)
	CancelPayment(ctx context.Context, data cart.SessionData) (cart.SessionData, error)
	DeletePayment(ctx context.Context, session cart.PaymentSession) error
	RetrievePayment(ctx context.Context, data cart.SessionData) (cart.SessionData, error)
	GetPaymentData(ctx context.Context, session cart.PaymentSession) (cart.SessionData, error)
}

// Session data keys written by the PayTR provider.
const (
	dataMerchantOID = "merchantOid"
	dataIsPending   = "isPending"
	dataStatus      = "status"
)
