package payment

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/payment-paytr/internal/cart"
	"github.com/noah-isme/payment-paytr/internal/common"
)

// Handler exposes the storefront-facing PayTR endpoints.
type Handler struct {
	Provider *PayTR
	Carts    cart.Retriever
	Sessions cart.SessionStore
}

type sessionResp struct {
	SessionID string           `json:"sessionId"`
	Status    SessionStatus    `json:"status"`
	Data      cart.SessionData `json:"data"`
}

type tokenResp struct {
	Token       string `json:"token"`
	IframeURL   string `json:"iframeUrl"`
	MerchantOID string `json:"merchantOid"`
}

// Session creates, or resets to pending, the PayTR session of a cart. A session
// already settled by a callback is returned as it is.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	cartID, ok := cartParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	c, err := h.Carts.Retrieve(ctx, cartID, cart.RetrieveConfig{Relations: []string{"payment_sessions"}})
	if err != nil {
		common.WriteError(w, toAppError(err))
		return
	}
	if existing, found := findSession(c.PaymentSessions, MerchantOID(c.ID)); found && settled(existing.Data) {
		h.writeSession(w, r, http.StatusOK, existing)
		return
	}
	data, err := h.Provider.CreatePayment(ctx, c)
	if err != nil {
		common.WriteError(w, toAppError(err))
		return
	}
	session, err := h.Sessions.UpsertSession(ctx, c.ID, Identifier, data)
	if err != nil {
		common.WriteError(w, toAppError(err))
		return
	}
	h.writeSession(w, r, http.StatusCreated, session)
}

func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, code int, session cart.PaymentSession) {
	status, _ := h.Provider.GetStatus(r.Context(), session.Data)
	common.JSON(w, code, sessionResp{SessionID: session.ID, Status: status, Data: session.Data})
}

// Token requests a checkout token for the cart.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	cartID, ok := cartParam(w, r)
	if !ok {
		return
	}
	token, err := h.Provider.GenerateToken(r.Context(), cartID)
	if err != nil {
		common.WriteError(w, toAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, tokenResp{
		Token:       token,
		IframeURL:   h.Provider.IframeURL(token),
		MerchantOID: MerchantOID(cartID),
	})
}

// Status reports the host status of the cart's PayTR session.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	cartID, ok := cartParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	c, err := h.Carts.Retrieve(ctx, cartID, cart.RetrieveConfig{Relations: []string{"payment_sessions"}})
	if err != nil {
		common.WriteError(w, toAppError(err))
		return
	}
	session, found := findSession(c.PaymentSessions, MerchantOID(c.ID))
	if !found {
		common.WriteError(w, toAppError(ErrSessionNotFound))
		return
	}
	status, err := h.Provider.GetStatus(ctx, session.Data)
	if err != nil {
		common.WriteError(w, toAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Provider == nil || h.Carts == nil || h.Sessions == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return false
	}
	return true
}

func cartParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	cartID := strings.TrimSpace(chi.URLParam(r, "cartId"))
	if cartID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cartId is required", nil)
		return "", false
	}
	return cartID, true
}

// toAppError maps provider and store errors onto HTTP error responses.
func toAppError(err error) *common.AppError {
	var initErr *InitiationError
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return common.NewAppError("INVALID_SIGNATURE", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrSessionNotFound):
		return common.NewAppError("PAYMENT_SESSION_NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.As(err, &initErr):
		return common.NewAppError("PAYMENT_INITIATION_FAILED", initErr.Error(), http.StatusBadGateway, err)
	case errors.Is(err, cart.ErrNotFound):
		return common.NewAppError("CART_NOT_FOUND", err.Error(), http.StatusNotFound, err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}
