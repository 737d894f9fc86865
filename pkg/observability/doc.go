// Package observability provides structured logging, Prometheus metrics,
// health checks, and OpenTelemetry tracing for the mindful services.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", userID).Info("message sent")
//
// Request-scoped loggers pick up the request and user IDs placed in the
// context by the HTTP middleware:
//
//	observability.FromContext(r.Context()).WithError(err).Warn("send failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.MessagesSentTotal.WithLabelValues("user").Inc()
//	metrics.CreditsGrantedTotal.Add(10)
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	router.HandleFunc("/health/ready", checker.Readiness)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
