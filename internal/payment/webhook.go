package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/payment-paytr/internal/common"
	"github.com/noah-isme/payment-paytr/internal/obs"
)

const defaultWebhookMaxBody = 64 << 10

// Replay key states. A key is in flight while its callback is being applied
// and done once the session has been persisted.
const (
	replayInFlight = "processing"
	replayDone     = "done"
)

// CallbackHandler applies a verified-or-rejected gateway notification.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, n Notification) error
}

// ReplayStore is the subset of the Redis client used for duplicate detection.
type ReplayStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Webhook receives PayTR callback POSTs and answers with the plain "OK" PayTR expects.
type Webhook struct {
	Provider  CallbackHandler
	Replay    ReplayStore
	ReplayTTL time.Duration
	MaxBody   int64
}

// Handle processes a single callback request.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	maxBody := h.MaxBody
	if maxBody <= 0 {
		maxBody = defaultWebhookMaxBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "callback payload too large", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "malformed form payload", nil)
		return
	}
	n := notificationFromForm(form, r.URL.Query())
	if err := n.Validate(); err != nil {
		countCallback("invalid")
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}

	ctx := r.Context()
	replayKey := ""
	if h.Replay != nil && h.ReplayTTL > 0 {
		replayKey = fmt.Sprintf("wh:%s:%s", Identifier, common.Sha256Hex(string(body)))
		fresh, err := h.Replay.SetNX(ctx, replayKey, replayInFlight, h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !fresh {
			state, err := h.Replay.Get(ctx, replayKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
				return
			}
			if state == replayDone {
				countCallback("replay")
				writeOK(w)
				return
			}
			// Only "OK" stops gateway retries, so an unfinished duplicate gets a non-OK reply.
			countCallback("in_flight")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook still processing", nil)
			return
		}
	}

	if err := h.Provider.HandleCallback(ctx, n); err != nil {
		if replayKey != "" {
			_ = h.Replay.Del(context.WithoutCancel(ctx), replayKey).Err()
		}
		common.WriteError(w, toAppError(err))
		return
	}
	if replayKey != "" {
		_ = h.Replay.Set(context.WithoutCancel(ctx), replayKey, replayDone, h.ReplayTTL).Err()
	}
	writeOK(w)
}

func notificationFromForm(form, query url.Values) Notification {
	n := Notification{
		MerchantOID:      strings.TrimSpace(form.Get("merchant_oid")),
		Status:           form.Get("status"),
		TotalAmount:      form.Get("total_amount"),
		Hash:             form.Get("hash"),
		FailedReasonCode: form.Get("failed_reason_code"),
		FailedReasonMsg:  form.Get("failed_reason_msg"),
		PaymentType:      form.Get("payment_type"),
		Currency:         form.Get("currency"),
		PaymentAmount:    form.Get("payment_amount"),
		TestMode:         form.Get("test_mode"),
	}
	n.CartID = firstNonEmpty(form.Get("cartId"), form.Get("cart_id"), query.Get("cart_id"))
	if n.CartID == "" && n.MerchantOID != "" {
		n.CartID = "cart_" + n.MerchantOID
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func countCallback(result string) {
	if obs.PaymentCallbackTotal != nil {
		obs.PaymentCallbackTotal.WithLabelValues(Identifier, result).Inc()
	}
}

func writeOK(w http.ResponseWriter) {
	common.Text(w, http.StatusOK, "OK")
}
