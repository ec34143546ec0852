package payment_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-paytr/internal/cart"
	"github.com/noah-isme/payment-paytr/internal/payment"
)

// memStore is an in-memory cart, region and session store.
type memStore struct {
	mu      sync.Mutex
	carts   map[string]cart.Cart
	regions map[string]cart.Region
	updates int
}

func newMemStore(carts ...cart.Cart) *memStore {
	s := &memStore{
		carts:   map[string]cart.Cart{},
		regions: map[string]cart.Region{"reg_tr": {ID: "reg_tr", Name: "Turkey", CurrencyCode: "try"}},
	}
	for _, c := range carts {
		s.carts[c.ID] = c
	}
	return s
}

func (s *memStore) Retrieve(_ context.Context, id string, _ cart.RetrieveConfig) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return cart.Cart{}, cart.ErrNotFound
	}
	sessions := make([]cart.PaymentSession, len(c.PaymentSessions))
	for i, ps := range c.PaymentSessions {
		ps.Data = ps.Data.Clone()
		sessions[i] = ps
	}
	c.PaymentSessions = sessions
	return c, nil
}

func (s *memStore) RetrieveRegion(_ context.Context, id string) (cart.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[id]
	if !ok {
		return cart.Region{}, cart.ErrNotFound
	}
	return r, nil
}

func (s *memStore) UpsertSession(_ context.Context, cartID, providerID string, data cart.SessionData) (cart.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cartID]
	if !ok {
		return cart.PaymentSession{}, cart.ErrNotFound
	}
	for i, ps := range c.PaymentSessions {
		if ps.ProviderID == providerID {
			if pending, ok := ps.Data["isPending"].(bool); ok && !pending {
				return ps, nil
			}
			c.PaymentSessions[i].Data = data.Clone()
			c.PaymentSessions[i].Status = "pending"
			return c.PaymentSessions[i], nil
		}
	}
	ps := cart.PaymentSession{ID: "ps_" + providerID + "_" + cartID, CartID: cartID, ProviderID: providerID, Status: "pending", Data: data.Clone()}
	c.PaymentSessions = append(c.PaymentSessions, ps)
	s.carts[cartID] = c
	return ps, nil
}

func (s *memStore) UpdateSessionData(_ context.Context, sessionID string, data cart.SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.carts {
		for i := range c.PaymentSessions {
			if c.PaymentSessions[i].ID == sessionID {
				c.PaymentSessions[i].Data = data.Clone()
				s.updates++
				return nil
			}
		}
	}
	return cart.ErrNotFound
}

func (s *memStore) sessionData(t *testing.T, cartID, sessionID string) cart.SessionData {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ps := range s.carts[cartID].PaymentSessions {
		if ps.ID == sessionID {
			return ps.Data.Clone()
		}
	}
	t.Fatalf("session %s not found on cart %s", sessionID, cartID)
	return nil
}

func (s *memStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func testMerchant() payment.MerchantConfig {
	return payment.MerchantConfig{
		MerchantID:    "123456",
		MerchantKey:   "merchant-key",
		MerchantSalt:  "merchant-salt",
		TokenEndpoint: "https://www.paytr.com/odeme/api/get-token",
		TimeoutLimit:  30,
	}
}

// widgetCart is the cart_abc123 cart with two 10.00 widgets.
func widgetCart(sessions ...cart.PaymentSession) cart.Cart {
	return cart.Cart{
		ID:       "cart_abc123",
		RegionID: "reg_tr",
		Items:    []cart.LineItem{{ID: "item_1", Title: "Widget", UnitPrice: 1000, Quantity: 2}},
		Customer: &cart.Customer{ID: "cus_1", Email: "buyer@example.com"},
		BillingAddress: &cart.Address{
			FirstName:   "Ada",
			LastName:    "Lovelace",
			Phone:       "5551234567",
			Address1:    "Main St 1",
			City:        "Istanbul",
			CountryCode: "TR",
		},
		Context:         map[string]any{"ip": "203.0.113.5"},
		PaymentSessions: sessions,
	}
}

func pendingSession() cart.PaymentSession {
	return cart.PaymentSession{
		ID:         "ps_1",
		CartID:     "cart_abc123",
		ProviderID: payment.Identifier,
		Status:     "pending",
		Data:       cart.SessionData{"merchantOid": "abc123", "isPending": true, "status": -1},
	}
}

func newProvider(t *testing.T, store *memStore, merchant payment.MerchantConfig, client *http.Client) *payment.PayTR {
	t.Helper()
	p, err := payment.NewPayTR(payment.Deps{
		Carts:      store,
		Totals:     cart.Totals{},
		Regions:    store,
		Sessions:   store,
		HTTPClient: client,
	}, merchant)
	require.NoError(t, err)
	return p
}

func hmacB64(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
