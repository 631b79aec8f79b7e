package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/gpbook/gpbook/internal/config"
	"github.com/gpbook/gpbook/internal/domain/booking"
	"github.com/gpbook/gpbook/internal/domain/practice"
	"github.com/gpbook/gpbook/internal/platform/assertion"
	"github.com/gpbook/gpbook/internal/platform/audit"
	"github.com/gpbook/gpbook/internal/platform/auth"
	"github.com/gpbook/gpbook/internal/platform/cache"
	"github.com/gpbook/gpbook/internal/platform/db"
	"github.com/gpbook/gpbook/internal/platform/gpconnect"
	"github.com/gpbook/gpbook/internal/platform/middleware"
	"github.com/gpbook/gpbook/internal/platform/notification"
)

const version = "0.1.0"

// app holds the wired components shared by the HTTP surface and background
// work.
type app struct {
	pool         *pgxpool.Pool
	directory    *practice.Directory
	availability *booking.AvailabilityService
	orchestrator *booking.Orchestrator
	reconciler   *booking.Reconciler
	auditTrail   audit.TraceReader
	closers      []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires every component from cfg. Without DATABASE_URL the practice
// directory serves sample data and bookings are kept in memory.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	var (
		practiceRepo practice.Repository
		auditStore   audit.Store
		bookingStore booking.Repository = booking.NewMemoryRepo()
	)

	if cfg.PersistenceConfigured() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
		practiceRepo = practice.NewRepoPG(pool)
		pgAudit := audit.NewPGStore(pool)
		auditStore = pgAudit
		a.auditTrail = pgAudit
		bookingStore = booking.NewRepoPG(pool)
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set: using sample practices and in-memory bookings")
	}

	if practiceRepo != nil && cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, practice cache disabled")
		} else {
			a.closers = append(a.closers, func() { _ = client.Close() })
			practiceRepo = practice.NewCachedRepo(practiceRepo,
				cache.NewJSONCache(client, practice.CacheKeyPrefix, cfg.PracticeCacheTTL), logger)
		}
	}

	a.directory = practice.NewDirectory(practiceRepo, practice.SamplePractices(), logger)

	assertions := assertion.NewGenerator(cfg.AssertionConfig())
	if !assertions.Signing() {
		logger.Warn().Msg("no signing key configured: demo mode, availability returns mock slots and bookings are simulated")
	}
	client := gpconnect.NewClient(assertions, cfg.LocalASID, cfg.ExternalTimeout, logger)
	recorder := audit.NewLogger(auditStore, logger)

	availPolicy, err := booking.ParseFailurePolicy(cfg.AvailabilityFailurePolicy)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("AVAILABILITY_FAILURE_POLICY: %w", err)
	}
	bookPolicy := booking.Propagate
	if cfg.SimulateSuccessOnFailure {
		bookPolicy = booking.FallbackToMock
		logger.Warn().Msg("SIMULATE_SUCCESS_ON_FAILURE is set: failed bookings will be reported as simulated successes")
	}

	senders := notification.Senders{
		SecureMessage: notification.LogSender{Logger: logger},
		Email:         notification.LogSender{Logger: logger},
		SMS:           notification.LogSender{Logger: logger},
	}
	channels, err := notification.BuildChannels(cfg.NotificationChannels, senders, notification.NewTemplateEngine())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("NOTIFICATION_CHANNELS: %w", err)
	}

	a.availability = booking.NewAvailabilityService(a.directory, client, recorder,
		booking.AvailabilityConfig{Demo: cfg.Demo(), Policy: availPolicy}, logger)
	a.orchestrator = booking.NewOrchestrator(a.directory, client, bookingStore,
		notification.NewDispatcher(channels, logger), recorder,
		booking.OrchestratorConfig{Demo: cfg.Demo(), Policy: bookPolicy}, logger)
	a.reconciler = booking.NewReconciler(bookingStore, cfg.ReconcileAfter, logger)
	return a, nil
}

func newRouter(cfg *config.Config, a *app, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}))

	var admin *echo.Group
	if cfg.AdminTokenSecret != "" {
		admin = apiV1.Group("/admin",
			auth.JWTMiddleware(auth.JWTConfig{SigningKey: []byte(cfg.AdminTokenSecret)}),
			auth.RequireRole(auth.RoleAdmin))
	}

	practice.NewHandler(a.directory).RegisterRoutes(apiV1, admin)
	booking.NewHandler(a.availability, a.orchestrator).RegisterRoutes(apiV1, admin)
	if admin != nil {
		audit.NewHandler(a.auditTrail).RegisterRoutes(admin)
	}
	return e
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()

	e := newRouter(cfg, a, logger)

	go a.reconciler.Run(ctx, cfg.ReconcileInterval)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
