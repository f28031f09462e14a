// Package metrics defines the Prometheus metric collectors used by the term
// index services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the term index.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	OperationsTotal      *prometheus.CounterVec
	TermsIndexed         prometheus.Gauge
	PrefixResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	SnapshotsTotal       *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec
}

// New creates all collectors and registers them with reg. A nil reg means
// the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
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
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "term_index_operations_total",
				Help: "Term index operations by operation and result (ok, not_found, invalid).",
			},
			[]string{"op", "result"},
		),
		TermsIndexed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "term_index_terms",
				Help: "Number of terms currently held by the index.",
			},
		),
		PrefixResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "term_index_prefix_results",
				Help:    "Number of terms returned per prefix query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "prefix_cache_hits_total",
				Help: "Total number of prefix cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "prefix_cache_misses_total",
				Help: "Total number of prefix cache misses.",
			},
		),
		SnapshotsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "term_index_snapshots_total",
				Help: "Snapshot writes by target (file, postgres, backup) and status.",
			},
			[]string{"target", "status"},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "term_events_consumed_total",
				Help: "Term events applied from Kafka by type and status.",
			},
			[]string{"type", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.OperationsTotal,
		m.TermsIndexed,
		m.PrefixResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SnapshotsTotal,
		m.EventsConsumedTotal,
	)

	return m
}

// Handler returns the scrape handler for g, or for the default registry
// when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
