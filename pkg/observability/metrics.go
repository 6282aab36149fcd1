package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Dispatch metrics
	DispatchTotal     *prometheus.CounterVec
	DispatchDuration  *prometheus.HistogramVec
	UpstreamRetries   *prometheus.CounterVec
	PermissionDenials *prometheus.CounterVec

	// Audit metrics
	AuditWriteErrors prometheus.Counter

	// Catalog metrics
	CatalogOperations *prometheus.GaugeVec
	CatalogLoadErrors *prometheus.CounterVec

	// Session metrics
	SessionsActive     prometheus.Gauge
	SessionMessagesOut *prometheus.CounterVec
	SessionDrops       prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_mcp_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_mcp_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_mcp_dispatch_total",
				Help: "Total number of tool dispatches by outcome",
			},
			[]string{"namespace", "method", "outcome"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_mcp_dispatch_duration_seconds",
				Help:    "Tool dispatch duration in seconds, including upstream retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"namespace", "method"},
		),
		UpstreamRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_mcp_upstream_retries_total",
				Help: "Upstream request retries by reason",
			},
			[]string{"reason"},
		),
		PermissionDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_mcp_permission_denials_total",
				Help: "Tool invocations denied by the edit-mode gate or authorization",
			},
			[]string{"reason"},
		),

		AuditWriteErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_mcp_audit_write_errors_total",
				Help: "Audit records that failed to persist",
			},
		),

		CatalogOperations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_mcp_catalog_operations",
				Help: "Operations loaded per namespace",
			},
			[]string{"namespace"},
		),
		CatalogLoadErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_mcp_catalog_load_errors_total",
				Help: "Namespace documents rejected during catalog load",
			},
			[]string{"namespace"},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nexus_mcp_sessions_active",
				Help: "Open streaming sessions",
			},
		),
		SessionMessagesOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_mcp_session_events_total",
				Help: "Events written to streaming sessions",
			},
			[]string{"event"},
		),
		SessionDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_mcp_session_dropped_messages_total",
				Help: "Messages dropped because a session queue was full",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DispatchTotal,
		m.DispatchDuration,
		m.UpstreamRetries,
		m.PermissionDenials,
		m.AuditWriteErrors,
		m.CatalogOperations,
		m.CatalogLoadErrors,
		m.SessionsActive,
		m.SessionMessagesOut,
		m.SessionDrops,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code.
// Flush is forwarded so streaming handlers keep working behind the middleware.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// routeLabel returns the mux route template, falling back to the raw path
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
