// Package observability provides structured logging, Prometheus metrics,
// health probes, graceful shutdown and OpenTelemetry wiring.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("action", "CREATE_INVENTORY").Warn("audit record dropped")
//
// Request-scoped loggers carry the request id and, once the caller is
// resolved, the user id:
//
//	observability.FromContext(r.Context(), fallback).Info("login complete")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.LoginsTotal.WithLabelValues(observability.OutcomeSuccess).Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(opsMux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
package observability
