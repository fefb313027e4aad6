// Package metrics defines the Prometheus collectors for indexing, reindexing,
// ingestion and search, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	MessagesIndexedTotal  prometheus.Counter
	CodesLinkedTotal      prometheus.Counter
	EncodingFailuresTotal prometheus.Counter
	StoreErrorsTotal      *prometheus.CounterVec
	ReindexRunsTotal      *prometheus.CounterVec
	ReindexDuration       prometheus.Histogram
	ReindexMessagesTotal  *prometheus.CounterVec
	EventsIngestedTotal   *prometheus.CounterVec
	EventsAcceptedTotal   *prometheus.CounterVec
	SearchQueriesTotal    *prometheus.CounterVec
	SearchLatency         prometheus.Histogram
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		MessagesIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatlog_messages_indexed_total",
				Help: "Messages and content fragments passed through the indexing engine.",
			},
		),
		CodesLinkedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatlog_codes_linked_total",
				Help: "Phonetic code to message links written.",
			},
		),
		EncodingFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatlog_encoding_failures_total",
				Help: "Tokens the phonetic encoder rejected.",
			},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlog_store_errors_total",
				Help: "Index store failures by operation.",
			},
			[]string{"operation"},
		),
		ReindexRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlog_reindex_runs_total",
				Help: "Channel reindex runs by status (success, failure, malformed).",
			},
			[]string{"status"},
		),
		ReindexDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatlog_reindex_duration_seconds",
				Help:    "Wall time of a single channel reindex.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 9),
			},
		),
		ReindexMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlog_reindex_messages_total",
				Help: "Log entries seen during reindex by outcome (indexed, skipped, malformed).",
			},
			[]string{"outcome"},
		),
		EventsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlog_events_ingested_total",
				Help: "Chat events appended to the message log by action.",
			},
			[]string{"action"},
		),
		EventsAcceptedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlog_events_accepted_total",
				Help: "Chat events received over HTTP by status (accepted, invalid, failed).",
			},
			[]string{"status"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatlog_search_queries_total",
				Help: "Search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatlog_search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.MessagesIndexedTotal,
		m.CodesLinkedTotal,
		m.EncodingFailuresTotal,
		m.StoreErrorsTotal,
		m.ReindexRunsTotal,
		m.ReindexDuration,
		m.ReindexMessagesTotal,
		m.EventsIngestedTotal,
		m.EventsAcceptedTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
