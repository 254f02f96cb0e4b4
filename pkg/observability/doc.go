// Package observability provides structured logging, health checks,
// graceful shutdown and OpenTelemetry setup.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter. Derived loggers share the
// level of their root so it can be changed at runtime:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("organization_id", id).Info("organization created")
//	logger.SetLevel(observability.DebugLevel)
//
// Request scoped loggers travel in the context:
//
//	ctx = observability.WithRequestID(ctx, reqID)
//	observability.FromContext(ctx).Warn("serving placeholder")
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.Register("database", true, observability.DatabaseCheck(db))
//	checker.Register("redis", false, observability.RedisCheck(client))
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
//
// # Related Packages
//
//   - pkg/metrics: Prometheus and OpenTelemetry metric instruments
//   - pkg/config: observability configuration
package observability
