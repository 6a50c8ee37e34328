package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/qotd/internal/config"
	"github.com/vyrodovalexey/qotd/internal/health"
	"github.com/vyrodovalexey/qotd/internal/observability"
	"github.com/vyrodovalexey/qotd/internal/quote"
	"github.com/vyrodovalexey/qotd/internal/ratelimit"
	"github.com/vyrodovalexey/qotd/internal/server"
)

// application holds all application components.
type application struct {
	config        *config.Config
	logger        observability.Logger
	server        *server.Server
	metrics       *observability.Metrics
	metricsServer *http.Server
	tracer        *observability.Tracer
	healthChecker *health.Checker
}

// initApplication wires the quote source, rate limiter and server.
func initApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics("qotd")
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	metrics.InitVecMetrics()

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	source := quote.NewSource(ctx, cfg,
		quote.WithLogger(logger),
		quote.WithMetrics(metrics),
	)

	limiter := ratelimit.NewTable(
		cfg.RateLimit.TableSize,
		cfg.RateLimit.TokensPerSecond,
		cfg.RateLimit.Burst,
		ratelimit.WithLogger(observability.ZapLogger(logger).Named("ratelimit")),
	)

	srv, err := server.New(cfg, source, limiter,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithTracer(tracer),
	)
	if err != nil {
		_ = source.Close()
		return nil, err
	}

	healthChecker := health.NewChecker(version)
	healthChecker.RegisterCheck("server", health.ServerCheck(srv.State))
	if cmd, ok := source.(*quote.Command); ok {
		healthChecker.RegisterCheck("quote_command", health.BreakerCheck(cmd.BreakerState))
	}

	return &application{
		config:        cfg,
		logger:        logger,
		server:        srv,
		metrics:       metrics,
		tracer:        tracer,
		healthChecker: healthChecker,
	}, nil
}

// serve starts every component, blocks until ctx is done or the server
// fails, then shuts everything down.
func (a *application) serve(ctx context.Context) error {
	if err := a.server.Start(ctx); err != nil {
		a.logger.Error("failed to start server", observability.Error(err))
		a.shutdown()
		return err
	}

	a.startMetricsServerIfEnabled()

	runErr := make(chan error, 1)
	go func() { runErr <- a.server.Run(ctx) }()

	var err error
	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	case err = <-runErr:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}

	a.shutdown()
	return err
}

// startMetricsServerIfEnabled starts the metrics server if enabled.
func (a *application) startMetricsServerIfEnabled() {
	if !a.config.Metrics.Enabled {
		return
	}

	a.metricsServer = observability.NewMetricsServer(observability.MetricsServerConfig{
		Address:  a.config.Metrics.Address,
		Path:     a.config.Metrics.Path,
		Handlers: a.healthChecker.Routes(),
	}, a.metrics)

	a.logger.Info("starting metrics server",
		observability.String("address", a.config.Metrics.Address),
		observability.String("metrics_path", a.config.Metrics.Path),
	)

	go func(srv *http.Server) {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", observability.Error(err))
		}
	}(a.metricsServer)
}
