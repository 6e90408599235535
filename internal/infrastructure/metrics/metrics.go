// Package metrics internal/infrastructure/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	syncCycles     *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	staleDiscarded prometheus.Counter
	fetchesShared  *prometheus.CounterVec
	transactions   *prometheus.CounterVec
	ledgerRequests *prometheus.CounterVec
	degradedReads  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		syncCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kantor",
			Name:      "sync_cycles_total",
			Help:      "Sync cycles by outcome.",
		}, []string{"outcome"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kantor",
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		staleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kantor",
			Name:      "sync_stale_discarded_total",
			Help:      "Sync completions discarded because a newer sync was issued.",
		}),
		fetchesShared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kantor",
			Name:      "fetches_coalesced_total",
			Help:      "Fetches served by an in-flight request for the same resource.",
		}, []string{"resource"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kantor",
			Name:      "transactions_total",
			Help:      "Submitted transactions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ledgerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kantor",
			Name:      "ledger_requests_total",
			Help:      "Ledger HTTP requests by operation and status class.",
		}, []string{"operation", "status"}),
		degradedReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kantor",
			Name:      "degraded_reads_total",
			Help:      "Reads that fell back to default or empty data.",
		}, []string{"resource"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.syncCycles,
			m.syncDuration,
			m.staleDiscarded,
			m.fetchesShared,
			m.transactions,
			m.ledgerRequests,
			m.degradedReads,
		)
	}

	return m
}

// SyncCompleted records a sync cycle outcome ("ok", "error", "stale")
func (m *Metrics) SyncCompleted(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.syncCycles.WithLabelValues(outcome).Inc()
	m.syncDuration.Observe(took.Seconds())
	if outcome == "stale" {
		m.staleDiscarded.Inc()
	}
}

// FetchShared records a fetch answered by a coalesced in-flight request
func (m *Metrics) FetchShared(resource string) {
	if m == nil {
		return
	}
	m.fetchesShared.WithLabelValues(resource).Inc()
}

// TransactionFinished records a mutation outcome ("settled", "failed", "rejected")
func (m *Metrics) TransactionFinished(kind, outcome string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(kind, outcome).Inc()
}

// LedgerRequest records a ledger HTTP call
func (m *Metrics) LedgerRequest(operation, status string) {
	if m == nil {
		return
	}
	m.ledgerRequests.WithLabelValues(operation, status).Inc()
}

// DegradedRead records a read that fell back to default data
func (m *Metrics) DegradedRead(resource string) {
	if m == nil {
		return
	}
	m.degradedReads.WithLabelValues(resource).Inc()
}
