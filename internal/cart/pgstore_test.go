package cart_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-paytr/internal/cart"
	"github.com/noah-isme/payment-paytr/internal/db"
)

// newTestStore connects to PAYTR_TEST_DATABASE_URL, migrates it and seeds one cart.
func newTestStore(t *testing.T) (*cart.PGStore, string) {
	t.Helper()
	dsn := os.Getenv("PAYTR_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PAYTR_TEST_DATABASE_URL not set")
	}
	require.NoError(t, db.Migrate(dsn))

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	suffix := uuid.NewString()[:8]
	regionID := "reg_" + suffix
	cartID := "cart_" + suffix
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO regions (id, name, currency_code) VALUES ($1, 'Turkey', 'try')`, []any{regionID}},
		{`INSERT INTO customers (id, email, metadata) VALUES ($1, 'buyer@example.com', '{"lang":"en"}')`, []any{"cus_" + suffix}},
		{`INSERT INTO addresses (id, first_name, last_name, phone, address_1, city) VALUES ($1, 'Ada', 'Lovelace', '555', 'Main St 1', 'Istanbul')`, []any{"addr_" + suffix}},
		{`INSERT INTO carts (id, region_id, customer_id, billing_address_id, context, subtotal, tax_total)
		  VALUES ($1, $2, $3, $4, '{"ip":"203.0.113.5"}', 2000, 360)`, []any{cartID, regionID, "cus_" + suffix, "addr_" + suffix}},
		{`INSERT INTO line_items (id, cart_id, title, unit_price, quantity) VALUES ($1, $2, 'Widget', 1000, 2)`, []any{"item_" + suffix, cartID}},
	}
	for _, s := range stmts {
		_, err := pool.Exec(ctx, s.sql, s.args...)
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM carts WHERE id = $1`, cartID)
	})
	return cart.NewPGStore(pool), cartID
}

func TestPGStoreRetrieve(t *testing.T) {
	store, cartID := newTestStore(t)
	ctx := context.Background()

	c, err := store.Retrieve(ctx, cartID, cart.DefaultRetrieveConfig)
	require.NoError(t, err)
	require.Equal(t, int64(2000), c.Subtotal)
	require.Equal(t, int64(360), c.TaxTotal)
	require.Len(t, c.Items, 1)
	require.Equal(t, "Widget", c.Items[0].Title)
	require.NotNil(t, c.Customer)
	require.Equal(t, "en", c.Customer.Metadata["lang"])
	require.NotNil(t, c.BillingAddress)
	require.Equal(t, "Ada", c.BillingAddress.FirstName)
	require.Nil(t, c.ShippingAddress)
	require.NotNil(t, c.Region)
	require.Equal(t, "try", c.Region.CurrencyCode)
	require.Equal(t, "203.0.113.5", c.Context["ip"])
	require.Empty(t, c.PaymentSessions)

	_, err = store.Retrieve(ctx, "cart_missing", cart.RetrieveConfig{})
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestPGStoreSessionLifecycle(t *testing.T) {
	store, cartID := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertSession(ctx, cartID, "paytr", cart.SessionData{"status": -1, "isPending": true})
	require.NoError(t, err)
	require.Equal(t, "pending", first.Status)

	again, err := store.UpsertSession(ctx, cartID, "paytr", cart.SessionData{"status": -1})
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	require.NoError(t, store.UpdateSessionData(ctx, first.ID, cart.SessionData{"status": nil, "isPending": false}))

	c, err := store.Retrieve(ctx, cartID, cart.RetrieveConfig{Relations: []string{"payment_sessions"}})
	require.NoError(t, err)
	require.Len(t, c.PaymentSessions, 1)
	require.Contains(t, c.PaymentSessions[0].Data, "status")
	require.Nil(t, c.PaymentSessions[0].Data["status"])
	require.Equal(t, false, c.PaymentSessions[0].Data["isPending"])

	settled, err := store.UpsertSession(ctx, cartID, "paytr", cart.SessionData{"status": -1, "isPending": true})
	require.NoError(t, err)
	require.Equal(t, first.ID, settled.ID)
	require.Equal(t, false, settled.Data["isPending"])
	require.Nil(t, settled.Data["status"])

	err = store.UpdateSessionData(ctx, "ps_missing", cart.SessionData{})
	require.ErrorIs(t, err, cart.ErrNotFound)
}
