package payment

import (
	"context"
	"crypto/hmac"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/payment-paytr/internal/cart"
	"github.com/noah-isme/payment-paytr/internal/obs"
)

const callbackStatusSuccess = "success"

// failedStatusCode is the generic error code stored for any non-success callback.
const failedStatusCode = 0

// Notification is the payment result PayTR posts to the callback URL.
type Notification struct {
	MerchantOID      string `validate:"required"`
	Status           string
	TotalAmount      string `validate:"required"`
	Hash             string `validate:"required"`
	CartID           string `validate:"required"`
	FailedReasonCode string
	FailedReasonMsg  string
	PaymentType      string
	Currency         string
	PaymentAmount    string
	TestMode         string
}

// Validate reports missing mandatory notification fields.
func (n Notification) Validate() error {
	if err := validate.Struct(n); err != nil {
		return fmt.Errorf("invalid paytr notification: %w", err)
	}
	return nil
}

// CallbackHash computes the signature PayTR attaches to a notification:
// base64(HMAC-SHA256(key, merchant_oid + salt + status + total_amount)).
func CallbackHash(merchant MerchantConfig, merchantOID, status, totalAmount string) string {
	return hmacBase64(merchant.MerchantKey, merchantOID+merchant.MerchantSalt+status+totalAmount)
}

// HandleCallback verifies a notification and settles the matching payment session.
//
// Each step fails fast and nothing is written when verification or lookup fails.
// Re-applying a notification overwrites the session with the same values. Concurrent
// callbacks for one order are not serialised and the last write wins.
func (p *PayTR) HandleCallback(ctx context.Context, n Notification) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "PayTR.HandleCallback")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.provider", Identifier),
		attribute.String("payment.merchant_oid", n.MerchantOID),
	)

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.callback.result", result))
		if obs.PaymentCallbackTotal != nil {
			obs.PaymentCallbackTotal.WithLabelValues(Identifier, result).Inc()
		}
	}()

	expected := CallbackHash(p.merchant, n.MerchantOID, n.Status, n.TotalAmount)
	if !hmac.Equal([]byte(expected), []byte(n.Hash)) {
		result = "invalid_signature"
		p.log.Warn().Str("merchant_oid", n.MerchantOID).Str("cart_id", n.CartID).Msg("paytr callback rejected: bad hash")
		return ErrInvalidSignature
	}

	c, err := p.carts.Retrieve(ctx, n.CartID, cart.DefaultRetrieveConfig)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("retrieve cart %s: %w", n.CartID, err)
	}
	session, ok := findSession(c.PaymentSessions, n.MerchantOID)
	if !ok {
		result = "not_found"
		p.log.Warn().Str("merchant_oid", n.MerchantOID).Str("cart_id", n.CartID).Msg("paytr callback has no payment session")
		return ErrSessionNotFound
	}

	var status any
	if n.Status != callbackStatusSuccess {
		status = failedStatusCode
	}
	// A settled session keeps its first outcome. Re-applying the same outcome is
	// allowed. Without this a late notification could flip authorized and error,
	// since unknown stored codes also read as authorized.
	if settled(session.Data) && MapStatus(session.Data[dataStatus]) != MapStatus(status) {
		result = "conflict"
		p.log.Warn().Str("merchant_oid", n.MerchantOID).Str("cart_id", n.CartID).Str("session_id", session.ID).
			Str("status", n.Status).Msg("paytr callback ignored: session already settled with another outcome")
		return nil
	}
	data, err := p.UpdatePayment(ctx, session.Data, cart.SessionData{
		dataStatus:      status,
		dataIsPending:   false,
		dataMerchantOID: n.MerchantOID,
	})
	if err != nil {
		return err
	}
	if err := p.sessions.UpdateSessionData(ctx, session.ID, data); err != nil {
		span.RecordError(err)
		return fmt.Errorf("update payment session %s: %w", session.ID, err)
	}

	result = "failed"
	if status == nil {
		result = "success"
	}
	evt := p.log.Info().Str("merchant_oid", n.MerchantOID).Str("cart_id", n.CartID).Str("session_id", session.ID).Str("status", n.Status)
	if n.FailedReasonCode != "" {
		evt = evt.Str("failed_reason_code", n.FailedReasonCode).Str("failed_reason_msg", n.FailedReasonMsg)
	}
	evt.Msg("paytr callback applied")
	return nil
}

// findSession returns the PayTR session whose merchant order id matches merchantOID.
// The stored merchantOid wins over the id derived from the session's cart.
func findSession(sessions []cart.PaymentSession, merchantOID string) (cart.PaymentSession, bool) {
	for _, s := range sessions {
		if s.ProviderID != "" && s.ProviderID != Identifier {
			continue
		}
		oid, _ := s.Data[dataMerchantOID].(string)
		if oid == "" {
			oid = MerchantOID(s.CartID)
		}
		if oid == merchantOID {
			return s, true
		}
	}
	return cart.PaymentSession{}, false
}

// settled reports whether a callback has already decided the session.
func settled(data cart.SessionData) bool {
	pending, ok := data[dataIsPending].(bool)
	return ok && !pending
}
