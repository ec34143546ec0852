package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const defaultProbeTimeout = 500 * time.Millisecond

var draining atomic.Bool

// SetReady toggles readiness. Serving false lets load balancers drain the
// instance before shutdown.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Probe checks one dependency.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Probes []Probe
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe and reports 503 when any of them fails.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string, len(h.Probes)+1)
	healthy := true
	if draining.Load() {
		status["server"] = "shutting down"
		healthy = false
	}
	for _, p := range h.Probes {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = defaultProbeTimeout
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		err := p.Check(ctx)
		cancel()
		if err != nil {
			status[p.Name] = err.Error()
			healthy = false
			continue
		}
		status[p.Name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// Postgres probes the pool with a ping.
func Postgres(pool *pgxpool.Pool, timeout time.Duration) Probe {
	return Probe{Name: "db", Timeout: timeout, Check: pool.Ping}
}

// Redis probes the client with PING.
func Redis(client *redis.Client, timeout time.Duration) Probe {
	return Probe{Name: "redis", Timeout: timeout, Check: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}
