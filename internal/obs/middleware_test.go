package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-paytr/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("paytr", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/health/ready"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/health/ready", "204")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("paytr", nil, registry)
	second := obs.NewHTTPMetrics("paytr", nil, registry)

	first.ReqTotal.WithLabelValues(http.MethodPost, "/x", "200").Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(second.ReqTotal.WithLabelValues(http.MethodPost, "/x", "200")))
}

func TestParseBucketsCSV(t *testing.T) {
	require.Nil(t, obs.ParseBucketsCSV("  "))
	require.Equal(t, []float64{5, 10.5, 250}, obs.ParseBucketsCSV("5, 10.5,,abc,-1,0,250"))
}

func TestRequestLoggerIncludesCartRoute(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.RequestLogger{Logger: zerolog.New(&buf)}

	r := chi.NewRouter()
	r.Use(logger.Middleware)
	r.Get("/carts/{cartId}/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	req := httptest.NewRequest(http.MethodGet, "/carts/cart_abc/status", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "error", entry["level"])
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, float64(http.StatusBadGateway), entry["status"])
	require.Equal(t, "/carts/cart_abc/status", entry["path"])
	require.Equal(t, "cart_abc", entry["cart_id"])
	require.Equal(t, "/carts/{cartId}/status", entry["route"])
}
