// Package observability provides structured logging, Prometheus metrics,
// health checks, and graceful shutdown.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("port", 8080).Info("server started")
//
// # Prometheus Metrics
//
// Initialize metrics against a dedicated registry:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.OperationsTotal.WithLabelValues("cancel", "success").Inc()
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(store, auditDB, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// The document store is the only hard readiness dependency; the audit
// database and Redis only degrade the reported status.
package observability
