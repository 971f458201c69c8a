package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/scheduler"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/webhook"
)

// Version is reported by the health endpoints
var Version = "dev"

// Server is the HTTP API plus the background workers that run beside it
type Server struct {
	app       *App
	echo      *echo.Echo
	http      *http.Server
	health    *health.Checker
	scheduler *scheduler.RetryScheduler
	consumer  *kafka.Consumer
	webhooks  *handlers.WebhookHandler
	logger    ectologger.Logger
}

// New builds the echo server for app. verifier is only used when auth is enabled.
func New(app *App, verifier middleware.TokenVerifier) *Server {
	cfg := app.Config
	logger := app.Logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	checker := health.NewChecker(Version)
	checker.AddCheck("state", func(context.Context) error {
		return app.Persister.LastError()
	})
	if app.Redis != nil {
		checker.AddOptionalCheck("redis", app.Redis.Ping)
	}
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var groupMiddleware []echo.MiddlewareFunc
	if cfg.AuthEnabled && verifier != nil {
		groupMiddleware = append(groupMiddleware, middleware.Authentication(logger, verifier))
	}
	api := e.Group(handlers.APIPrefix, groupMiddleware...)

	var limiter handlers.RateLimiter
	var deadLetters handlers.DeadLetters
	if app.Redis != nil {
		limiter = redis.NewRateLimiter(app.Redis, redis.DefaultRateLimitPrefix)
		deadLetters = app.DeadLetters
	}

	webhooks := handlers.NewWebhookHandler(
		app.Engine,
		app.Secrets,
		webhook.NewNormalizer(nil),
		limiter,
		handlers.WebhookLimits{Limit: cfg.WebhookRateLimit, Window: cfg.WebhookRateWindow},
		logger,
	)
	handlers.Register(api,
		handlers.NewConnectionHandler(app.Engine),
		handlers.NewSyncHandler(app.Engine),
		handlers.NewConflictHandler(app.Engine),
		webhooks,
		handlers.NewRetryHandler(app.Engine),
		handlers.NewDLQHandler(deadLetters, app.Engine, logger),
		handlers.NewLedgerHandler(app.Engine, logger),
		handlers.NewAuditHandler(app.Engine),
	)

	return &Server{
		app:      app,
		echo:     e,
		health:   checker,
		webhooks: webhooks,
		logger:   logger,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           e,
			ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
			WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
			IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
			ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		},
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run starts the workers and serves HTTP until ctx is cancelled, then shuts
// everything down within the configured budget.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.app.Config

	if cfg.SchedulerEnabled {
		var locker scheduler.Locker
		if s.app.Redis != nil {
			locker = redis.NewLocker(s.app.Redis, redis.DefaultLockPrefix)
		}
		s.scheduler = scheduler.NewRetryScheduler(s.app.Engine, locker, scheduler.Config{
			PollInterval: cfg.SchedulerPollInterval,
			BatchSize:    cfg.SchedulerBatchSize,
		}, s.logger)
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	if cfg.KafkaEnabled {
		consumer, err := kafka.NewConsumer(cfg.KafkaConsumer(), s.logger)
		if err != nil {
			s.stopWorkers(ctx)
			return fmt.Errorf("failed to create webhook consumer: %w", err)
		}
		if err := consumer.Start(ctx, s.webhooks.HandleMessage); err != nil {
			s.stopWorkers(ctx)
			return fmt.Errorf("failed to start webhook consumer: %w", err)
		}
		s.consumer = consumer
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Infof("HTTP server listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	s.health.SetReady(true)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = err
	}

	s.health.SetReady(false)
	s.logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("HTTP server shutdown failed")
	}
	s.stopWorkers(shutdownCtx)
	return runErr
}

func (s *Server) stopWorkers(ctx context.Context) {
	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			s.logger.WithError(err).Warn("webhook consumer stop failed")
		}
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.WithError(err).Warn("retry scheduler stop failed")
		}
	}
}

// Serve is the `fern serve` entry point: tracing, dependencies, HTTP and
// workers, with state flushed on the way out.
func Serve(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.AppName, cfg.OTLPEnabled, cfg.OTLP())
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	var verifier middleware.TokenVerifier
	if cfg.AuthEnabled {
		verifier, err = middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return fmt.Errorf("failed to create token verifier: %w", err)
		}
	}

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	runErr := New(app, verifier).Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.Close(closeCtx); err != nil {
		logger.WithError(err).Error("failed to close dependencies")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
