package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fxwallet"

// Rate table sources reported by RecordRateSource.
const (
	RateSourceCache    = "cache"
	RateSourceUpstream = "upstream"
	RateSourceFallback = "fallback"
)

// Metrics groups the Prometheus collectors exported by the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	rateSources       *prometheus.CounterVec
	cacheErrors       *prometheus.CounterVec
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_operations_total",
			Help:      "Wallet engine operations by type and outcome kind.",
		}, []string{"operation", "outcome"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wallet_operation_duration_seconds",
			Help:      "Latency of wallet engine operations including lock waits.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		rateSources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fx_rate_table_source_total",
			Help:      "Where resolved rate tables came from.",
		}, []string{"source"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fx_rate_cache_errors_total",
			Help:      "Rate cache read/write failures.",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.operationDuration, m.rateSources, m.cacheErrors)
	}
	return m
}

// RecordOperation counts one engine operation and observes its duration.
func (m *Metrics) RecordOperation(operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(took.Seconds())
}

// RecordRateSource counts a resolved rate table by origin.
func (m *Metrics) RecordRateSource(source string) {
	if m == nil {
		return
	}
	m.rateSources.WithLabelValues(source).Inc()
}

// RecordCacheError counts a failed cache read or write.
func (m *Metrics) RecordCacheError(op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(op).Inc()
}

// Operations exposes the operation counter for tests.
func (m *Metrics) Operations() *prometheus.CounterVec { return m.operations }

// RateSources exposes the rate source counter for tests.
func (m *Metrics) RateSources() *prometheus.CounterVec { return m.rateSources }
