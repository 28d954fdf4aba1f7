// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry wiring.
//
// # Structured Logging
//
// Loggers emit one JSON object per line:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", tenantID).Info("membership disabled")
//
// Request-scoped loggers travel on the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Error("gate lookup failed")
//
// # Prometheus Metrics
//
// Metrics are registered on a caller-supplied registry, and every Record
// method is safe on a nil *Metrics:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordDecision(true, "")
//	metrics.RecordCacheHit()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version).
//		AddCheck("postgres", true, observability.DatabaseCheck(db)).
//		AddCheck("redis", false, observability.RedisCheck(client))
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
// InitOTel installs global trace and meter providers exporting over OTLP/gRPC.
// It returns nil providers when disabled:
//
//	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
//	defer providers.Shutdown(ctx)
//
// # Shutdown
//
// ShutdownManager stops HTTP servers, then runs registered cleanups in reverse
// registration order on SIGINT or SIGTERM.
package observability
