package payment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-paytr/internal/cart"
	"github.com/noah-isme/payment-paytr/internal/payment"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		in   any
		want payment.SessionStatus
	}{
		{-1, payment.StatusPending},
		{float64(-1), payment.StatusPending},
		{0, payment.StatusError},
		{1, payment.StatusError},
		{2, payment.StatusError},
		{3, payment.StatusError},
		{6, payment.StatusError},
		{9, payment.StatusError},
		{11, payment.StatusError},
		{float64(99), payment.StatusError},
		{nil, payment.StatusAuthorized},
		{4, payment.StatusAuthorized},
		{42, payment.StatusAuthorized},
		{"0", payment.StatusAuthorized},
		{1.5, payment.StatusAuthorized},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, payment.MapStatus(tc.in), "%#v", tc.in)
	}
}

func TestCreatePayment(t *testing.T) {
	p := newProvider(t, newMemStore(), testMerchant(), nil)
	data, err := p.CreatePayment(context.Background(), cart.Cart{ID: "cart_abc123"})
	require.NoError(t, err)
	require.Equal(t, cart.SessionData{"merchantOid": "abc123", "isPending": true, "status": -1}, data)

	status, err := p.GetStatus(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, payment.StatusPending, status)
}

func TestUpdatePaymentOverlay(t *testing.T) {
	p := newProvider(t, newMemStore(), testMerchant(), nil)
	current := cart.SessionData{"status": -1, "isPending": true, "token": "t"}
	update := cart.SessionData{"status": nil, "isPending": false}

	merged, err := p.UpdatePayment(context.Background(), current, update)
	require.NoError(t, err)
	require.Equal(t, cart.SessionData{"status": nil, "isPending": false, "token": "t"}, merged)
	require.Equal(t, cart.SessionData{"status": -1, "isPending": true, "token": "t"}, current)
}

func TestPassThroughOperations(t *testing.T) {
	p := newProvider(t, newMemStore(), testMerchant(), nil)
	ctx := context.Background()
	data := cart.SessionData{"merchantOid": "abc123", "status": nil}
	session := cart.PaymentSession{ID: "ps_1", Data: data}

	require.Equal(t, payment.Identifier, p.Identifier())

	auth, err := p.AuthorizePayment(ctx, session)
	require.NoError(t, err)
	require.Equal(t, payment.StatusAuthorized, auth.Status)
	require.Equal(t, cart.SessionData{"status": "authorized"}, auth.Data)

	captured, err := p.CapturePayment(ctx, data)
	require.NoError(t, err)
	require.Equal(t, cart.SessionData{"status": "captured"}, captured)

	canceled, err := p.CancelPayment(ctx, data)
	require.NoError(t, err)
	require.Equal(t, cart.SessionData{"status": "canceled"}, canceled)

	refunded, err := p.RefundPayment(ctx, data, 500)
	require.NoError(t, err)
	require.Equal(t, data, refunded)

	retrieved, err := p.RetrievePayment(ctx, data)
	require.NoError(t, err)
	require.Equal(t, data, retrieved)

	got, err := p.GetPaymentData(ctx, session)
	require.NoError(t, err)
	require.Equal(t, data, got)

	require.NoError(t, p.DeletePayment(ctx, session))
}

func TestMerchantConfigValidate(t *testing.T) {
	require.NoError(t, testMerchant().Validate())

	m := testMerchant()
	m.MerchantSalt = ""
	require.ErrorContains(t, m.Validate(), "MerchantSalt")

	m = testMerchant()
	m.MaxInstallment = 13
	require.ErrorContains(t, m.Validate(), "MaxInstallment")

	m = testMerchant()
	m.MerchantOkURL = "not a url"
	require.Error(t, m.Validate())
}

func TestNewPayTRRequiresCollaborators(t *testing.T) {
	_, err := payment.NewPayTR(payment.Deps{}, testMerchant())
	require.Error(t, err)

	store := newMemStore()
	_, err = payment.NewPayTR(payment.Deps{Carts: store, Totals: cart.Totals{}, Regions: store, Sessions: store}, payment.MerchantConfig{})
	require.Error(t, err)
}
