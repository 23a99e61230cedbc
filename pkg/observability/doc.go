// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Overview
//
// This package centralizes observability infrastructure: JSON logging via slog,
// metrics collection, health probes, and optional OTLP trace export.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("kind", "factories").Info("cache rebuilt")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics(nil)
//	metrics.FKCacheHitsTotal.WithLabelValues("factories", "redis").Inc()
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(db, redisClient, searchEngine)
//	mux.HandleFunc("/healthz", checker.Liveness)
//	mux.HandleFunc("/readyz", checker.Readiness)
//
// The database is the only hard dependency. Redis and the search engine have
// degraded-mode fallbacks, so their failures report "degraded" rather than
// failing readiness.
package observability
