// Package metrics exposes Prometheus collectors for the rate-limit core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors recorded by the trackers and cache path.
// A nil *Metrics is valid and records nothing, so tests can pass nil.
type Metrics struct {
	decisions     *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	storeFailures *prometheus.CounterVec
	rollovers     prometheus.Counter
}

// New registers the collectors on reg and returns the recorder. The server
// passes its own registry; tests pass prometheus.NewRegistry() to avoid
// duplicate registration across cases.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_ratelimit_decisions_total",
				Help: "Rate limit decisions by caller type and result",
			},
			[]string{"caller", "result"},
		),

		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_cache_lookups_total",
				Help: "Key cache lookups by result",
			},
			[]string{"cache", "result"},
		),

		storeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_store_failures_total",
				Help: "Key store operations that failed and triggered the fallback verdict",
			},
			[]string{"op"},
		),

		rollovers: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "keygate_daily_rollovers_total",
				Help: "Calendar-day counter rollovers performed lazily during checks",
			},
		),
	}
}

// RecordDecision counts an allow/deny decision. caller is "key" or "anonymous".
func (m *Metrics) RecordDecision(caller string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.decisions.WithLabelValues(caller, result).Inc()
}

// RecordCacheLookup counts a cache hit or miss for the named cache.
func (m *Metrics) RecordCacheLookup(cacheName string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cacheName, result).Inc()
}

// RecordStoreFailure counts a store failure during the named operation.
func (m *Metrics) RecordStoreFailure(op string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(op).Inc()
}

// RecordRollover counts a lazy daily-counter rollover.
func (m *Metrics) RecordRollover() {
	if m == nil {
		return
	}
	m.rollovers.Inc()
}
