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

	// Subscription operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Billing provider metrics
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	RetriesTotal            *prometheus.CounterVec

	// Rollback and audit metrics
	RollbacksTotal      *prometheus.CounterVec
	AuditFailuresTotal  *prometheus.CounterVec
	ReconcileRunsTotal  *prometheus.CounterVec
	ReconcileDriftTotal prometheus.Counter

	// Token resolver cache metrics
	ResolverCacheHitsTotal   prometheus.Counter
	ResolverCacheMissesTotal prometheus.Counter

	// Audit database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platter_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platter_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platter_subscription_operations_total",
				Help: "Total number of subscription operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platter_subscription_operation_duration_seconds",
				Help:    "Subscription operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platter_provider_requests_total",
				Help: "Total number of billing provider API requests",
			},
			[]string{"action", "status"},
		),
		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platter_provider_request_duration_seconds",
				Help:    "Billing provider API request duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"action"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platter_provider_retries_total",
				Help: "Total number of retried billing provider calls",
			},
			[]string{"action"},
		),

		RollbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platter_rollbacks_total",
				Help: "Total number of local state rollbacks",
			},
			[]string{"operation", "status"},
		),
		AuditFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platter_audit_failures_total",
				Help: "Total number of failed audit writes",
			},
			[]string{"sink"},
		),
		ReconcileRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platter_reconcile_runs_total",
				Help: "Total number of reconciliation sweeps",
			},
			[]string{"status"},
		),
		ReconcileDriftTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "platter_reconcile_drift_total",
				Help: "Total number of subscriptions repaired by reconciliation",
			},
		),

		ResolverCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "platter_resolver_cache_hits_total",
				Help: "Total number of token resolver cache hits",
			},
		),
		ResolverCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "platter_resolver_cache_misses_total",
				Help: "Total number of token resolver cache misses",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "platter_audit_db_connections_active",
				Help: "Number of active audit database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "platter_audit_db_connections_idle",
				Help: "Number of idle audit database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OperationsTotal,
		m.OperationDuration,
		m.ProviderRequestsTotal,
		m.ProviderRequestDuration,
		m.RetriesTotal,
		m.RollbacksTotal,
		m.AuditFailuresTotal,
		m.ReconcileRunsTotal,
		m.ReconcileDriftTotal,
		m.ResolverCacheHitsTotal,
		m.ResolverCacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
