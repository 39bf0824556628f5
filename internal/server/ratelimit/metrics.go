package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus collectors for the limiter.
type Metrics struct {
	checks      *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
}

// NewMetrics registers the limiter collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		checks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uho_ratelimit_checks_total",
				Help: "Total number of rate limit checks by scope and result",
			},
			[]string{"scope", "result"},
		),
		storeErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uho_ratelimit_store_errors_total",
				Help: "Total number of window store failures (requests admitted)",
			},
			[]string{"scope"},
		),
	}
}

// RecordCheck records one check. Identifiers are not used as labels to keep
// cardinality bounded.
func (m *Metrics) RecordCheck(scope string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "blocked"
	}
	m.checks.WithLabelValues(scope, result).Inc()
}

// RecordStoreError records a store failure.
func (m *Metrics) RecordStoreError(scope string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(scope).Inc()
}
