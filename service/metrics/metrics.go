package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the harvester.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics. A nil
// *Metrics disables recording everywhere.
type Metrics struct {
	registry *prometheus.Registry

	// Solana RPC metrics
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCRateLimitHits     *prometheus.CounterVec
	solanaRPCRetries           *prometheus.CounterVec
	solanaRPCSignaturesPerCall *prometheus.HistogramVec

	// Cache metrics
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	cacheWritesTotal prometheus.Counter

	// Pipeline metrics
	transactionsFetchedTotal *prometheus.CounterVec
	transactionsParsedTotal  *prometheus.CounterVec
	purchasesTotal           prometheus.Counter
	reportRowsWritten        prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures fetched per GetSignaturesForAddress call",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),

		cacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Transactions already present in the local cache",
			},
		),
		cacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Transactions that had to be fetched from the RPC",
			},
		),
		cacheWritesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_writes_total",
				Help: "Raw transactions written to the local cache",
			},
		),

		transactionsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_fetched_total",
				Help: "Total number of transactions fetched, by status",
			},
			[]string{"status"},
		),
		transactionsParsedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_parsed_total",
				Help: "Total number of cached transactions run through the parser, by outcome",
			},
			[]string{"outcome"},
		),
		purchasesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "purchases_total",
				Help: "Purchase records extracted from cached transactions",
			},
		),
		reportRowsWritten: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "report_rows_written",
				Help: "Data rows in the most recently written report",
			},
		),
	}
}

// Handler returns an http.Handler serving this registry, for the optional
// /metrics listener during long harvests.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRPCCall records an RPC call with its duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, durationSeconds float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordRateLimitHit records a 429 from the RPC endpoint.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt and its reason.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCSignaturesPerCall records how many signatures one page returned.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.solanaRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// RecordCacheHit records a signature already present in the cache.
func (m *Metrics) RecordCacheHit() { m.cacheHitsTotal.Inc() }

// RecordCacheMiss records a signature that required a network fetch.
func (m *Metrics) RecordCacheMiss() { m.cacheMissesTotal.Inc() }

// RecordCacheWrite records a raw transaction persisted to the cache.
func (m *Metrics) RecordCacheWrite() { m.cacheWritesTotal.Inc() }

// RecordTransactionFetched records a completed fetch by status
// ("success" or "failed").
func (m *Metrics) RecordTransactionFetched(status string) {
	m.transactionsFetchedTotal.WithLabelValues(status).Inc()
}

// RecordTransactionParsed records a parse outcome
// ("purchase", "ignored", or "malformed").
func (m *Metrics) RecordTransactionParsed(outcome string) {
	m.transactionsParsedTotal.WithLabelValues(outcome).Inc()
}

// RecordPurchase records one extracted purchase record.
func (m *Metrics) RecordPurchase() { m.purchasesTotal.Inc() }

// SetReportRows records the data row count of the written report.
func (m *Metrics) SetReportRows(n int) { m.reportRowsWritten.Set(float64(n)) }
