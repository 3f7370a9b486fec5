package observability

import (
	"time"

	"github.com/boddenberg/pj-ledger-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Operation labels used across ledger metrics.
const (
	OpDeposit  = "deposit"
	OpWithdraw = "withdraw"
	OpTransfer = "transfer"
)

var ledgerOperations = []string{OpDeposit, OpWithdraw, OpTransfer}

// Metrics holds all Prometheus metrics for the ledger service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	ledgerOps         *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	storeErrors       prometheus.Counter
	idempotentReplays prometheus.Counter
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ledgerOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Ledger operations by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rejections_total",
				Help: "Rejected ledger operations by reason.",
			},
			[]string{"reason"},
		),
		storeErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_store_errors_total",
				Help: "Total persistence failures.",
			},
		),
		idempotentReplays: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_idempotent_replays_total",
				Help: "Mutations refused because the idempotency key was already seen.",
			},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrApplied counts a successfully applied ledger operation.
func (m *Metrics) IncrApplied(operation string) {
	m.ledgerOps.WithLabelValues(operation, "applied").Inc()
}

// IncrRejected counts a rejected ledger operation with its reason.
func (m *Metrics) IncrRejected(operation, reason string) {
	m.ledgerOps.WithLabelValues(operation, "rejected").Inc()
	m.rejections.WithLabelValues(reason).Inc()
}

// IncrStoreError increments the persistence failure counter.
func (m *Metrics) IncrStoreError() {
	m.storeErrors.Inc()
}

// IncrIdempotentReplay counts a mutation refused as a duplicate.
func (m *Metrics) IncrIdempotentReplay() {
	m.idempotentReplays.Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// GetLedgerSnapshot returns a snapshot of ledger metrics suitable for the
// GET /v1/metrics/ledger endpoint.
func (m *Metrics) GetLedgerSnapshot() *domain.LedgerMetrics {
	// Gather current values from Prometheus counters.
	// Note: Prometheus counters expose cumulative values.
	var applied, rejected float64
	for _, op := range ledgerOperations {
		applied += getCounterValue(m.ledgerOps, op, "applied")
		rejected += getCounterValue(m.ledgerOps, op, "rejected")
	}

	total := applied + rejected
	rejectionRate := float64(0)
	if total > 0 {
		rejectionRate = rejected / total
	}

	return &domain.LedgerMetrics{
		TotalOperations:    int64(total),
		AppliedOperations:  int64(applied),
		RejectedOperations: int64(rejected),
		RejectionRate:      rejectionRate,
		StoreErrors:        int64(getSingleCounterValue(m.storeErrors)),
		IdempotentReplays:  int64(getSingleCounterValue(m.idempotentReplays)),
		Period:             "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for
// the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func getSingleCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
