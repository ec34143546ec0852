package obs_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-paytr/internal/obs"
)

func TestMustRegisterDomainMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("paytr", registry)
	obs.MustRegisterDomainMetrics("paytr", registry)

	require.NotNil(t, obs.PaymentTokenTotal)
	require.NotNil(t, obs.PaymentCallbackTotal)

	obs.PaymentCallbackTotal.WithLabelValues("paytr", "success").Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(obs.PaymentCallbackTotal.WithLabelValues("paytr", "success")))
}
