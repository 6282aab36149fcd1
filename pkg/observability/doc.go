// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown for nexus-mcp.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tool", "manage_fabrics").Info("tool invoked")
//
// The logger is backed by logrus with a JSON formatter. Request-scoped fields
// travel through the context:
//
//	ctx = observability.WithRequestID(ctx, reqID)
//	observability.FromContext(ctx).Warn("upstream slow")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.DispatchTotal.WithLabelValues("manage", "GET", "success").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
// InitOTel installs global tracer and meter providers exporting over OTLP/gRPC.
// When disabled, the global no-op providers remain in place and spans cost nothing.
package observability
