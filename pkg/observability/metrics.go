package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access control metrics
	AccessDecisionsTotal *prometheus.CounterVec

	// FK options cache metrics
	FKCacheHitsTotal     *prometheus.CounterVec
	FKCacheMissesTotal   *prometheus.CounterVec
	FKCacheRebuildsTotal *prometheus.CounterVec
	FKCacheOptionCount   *prometheus.GaugeVec

	// Search metrics
	SearchQueriesTotal   *prometheus.CounterVec
	SearchFallbacksTotal *prometheus.CounterVec
	SearchBreakerOpen    prometheus.Gauge
	IndexOperationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thermaleye_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "thermaleye_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AccessDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thermaleye_access_decisions_total",
				Help: "Access control decisions by kind, action and outcome",
			},
			[]string{"kind", "action", "allowed"},
		),
		FKCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thermaleye_fk_cache_hits_total",
				Help: "FK options cache hits by layer",
			},
			[]string{"kind", "layer"},
		),
		FKCacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thermaleye_fk_cache_misses_total",
				Help: "FK options cache misses",
			},
			[]string{"kind"},
		),
		FKCacheRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thermaleye_fk_cache_rebuilds_total",
				Help: "FK options cache rebuilds by trigger",
			},
			[]string{"kind", "trigger"},
		),
		FKCacheOptionCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "thermaleye_fk_cache_option_count",
				Help: "Number of options in the last global rebuild",
			},
			[]string{"kind"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thermaleye_search_queries_total",
				Help: "Search queries by kind and execution path",
			},
			[]string{"kind", "path"},
		),
		SearchFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thermaleye_search_fallbacks_total",
				Help: "Searches answered by the database fallback path",
			},
			[]string{"kind", "reason"},
		),
		SearchBreakerOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "thermaleye_search_breaker_open",
				Help: "1 when the search engine breaker has tripped",
			},
		),
		IndexOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thermaleye_index_operations_total",
				Help: "Search index operations by kind and result",
			},
			[]string{"kind", "operation", "result"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AccessDecisionsTotal,
		m.FKCacheHitsTotal,
		m.FKCacheMissesTotal,
		m.FKCacheRebuildsTotal,
		m.FKCacheOptionCount,
		m.SearchQueriesTotal,
		m.SearchFallbacksTotal,
		m.SearchBreakerOpen,
		m.IndexOperationsTotal,
	)

	return m
}

// Handler returns the promhttp handler for the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
