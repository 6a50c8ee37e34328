// Package observability provides logging, metrics, and tracing
// functionality for the QOTD server.
//
// # Logging
//
// The Logger interface provides structured logging:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("quote served",
//	    observability.String("transport", "tcp"),
//	    observability.Int("bytes", 42),
//	)
//
// # Metrics
//
// Prometheus metrics for served requests, rate limiting and the
// quote source:
//
//	metrics := observability.NewMetrics("qotd")
//	handler := metrics.Handler()
//
// # Tracing
//
// OpenTelemetry tracing with optional OTLP export. One span is
// recorded per served request:
//
//	tracer, err := observability.NewTracer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
package observability
