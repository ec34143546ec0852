package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentTokenTotal counts checkout token requests by outcome.
	PaymentTokenTotal *prometheus.CounterVec
	// PaymentCallbackTotal counts inbound gateway callbacks by outcome.
	PaymentCallbackTotal *prometheus.CounterVec
	// PaymentTokenLatency records token round-trips to the gateway in milliseconds.
	PaymentTokenLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers payment collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentTokenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_token_total",
			Help:      "Count of checkout token requests by outcome.",
		}, []string{"provider", "result"})
		PaymentCallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callback_total",
			Help:      "Count of processed payment callbacks by outcome.",
		}, []string{"provider", "result"})
		PaymentTokenLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_token_duration_ms",
			Help:      "Latency of checkout token requests in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"provider", "result"})

		mustRegisterCollector(reg, PaymentTokenTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentTokenTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentCallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentCallbackTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentTokenLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				PaymentTokenLatency = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
