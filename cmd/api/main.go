// Package main is the entry point for the Daris tutor core API.
//
// The API serves the chat pipeline (turn ingestion, quota gating) and the
// mobile client (post-lesson reports, learner facts). Architecture follows
// Clean Architecture and DDD:
//   - Domain: pure business logic without external dependencies
//   - Application: use case orchestration (Commands/Queries)
//   - Infrastructure: PostgreSQL and Redis implementations, event bus
//   - Interface: HTTP endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/daris-app/daris-tutor-core/config"
	"github.com/daris-app/daris-tutor-core/internal/application/command"
	"github.com/daris-app/daris-tutor-core/internal/application/eventhandler"
	"github.com/daris-app/daris-tutor-core/internal/application/query"
	"github.com/daris-app/daris-tutor-core/internal/domain/fact"
	"github.com/daris-app/daris-tutor-core/internal/domain/quota"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/internal/infrastructure/messaging"
	"github.com/daris-app/daris-tutor-core/internal/infrastructure/persistence/postgres"
	"github.com/daris-app/daris-tutor-core/internal/infrastructure/persistence/redis"
	httpserver "github.com/daris-app/daris-tutor-core/internal/interface/http"
	"github.com/daris-app/daris-tutor-core/internal/interface/http/handlers"
	"github.com/daris-app/daris-tutor-core/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	slogger := setupSlog(cfg)
	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})

	slogger.Info("starting Daris tutor core API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("connecting to database...")
	var dbConn *postgres.Connection
	if cfg.Database.URL != "" {
		dbConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	} else {
		dbConn, err = postgres.NewConnection(ctx, postgres.DefaultConfig())
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		slogger.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	slogger.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slogger.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	if !cfg.Redis.Disabled {
		slogger.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			slogger.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			slogger.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing repositories...")
	lessonRepo := postgres.NewLessonRepository(dbConn)
	observationRepo := postgres.NewObservationRepository(dbConn)
	factRepo := postgres.NewFactRepository(dbConn)
	quotaRepo := postgres.NewQuotaRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = slogger
	eventBusConfig.AsyncMode = true
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		slogger.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing application layer...")
	clock := shared.SystemClock{}
	defaultTier := quota.Tier(cfg.Quota.DefaultTier)

	ingestTurnCmd := command.NewIngestTurnHandler(observationRepo, lessonRepo, clock, eventBus, log)
	extractFactsCmd := command.NewExtractFactsHandler(
		observationRepo, lessonRepo, factRepo,
		fact.DefaultMatcher{}, command.DefaultPolicy(), clock, eventBus, log,
	)
	reconcileFactsCmd := command.NewReconcileFactsHandler(factRepo, clock, eventBus, log)
	incrementUsageCmd := command.NewIncrementUsageHandler(quotaRepo, defaultTier, clock, eventBus, log)

	var reportCache query.ReportCache
	if redisCache != nil && cfg.Features.IsEnabled(config.FeatureReportCache, nil) {
		reportCache = redis.NewReportCache(redisCache)
	}
	generateReportQuery := query.NewGenerateReportHandler(observationRepo, reportCache, clock, log)
	canSendQuery := query.NewCanSendHandler(quotaRepo, defaultTier, clock, eventBus, log)
	learnerFactsQuery := query.NewLearnerFactsHandler(factRepo)

	if redisCache != nil {
		quotaCache := redis.NewQuotaCache(redisCache)
		canSendQuery = canSendQuery.WithDecisionCache(quotaCache)
		incrementUsageCmd = incrementUsageCmd.WithDecisionInvalidator(quotaCache)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("registering event handlers...")
	if cfg.Features.IsEnabled(config.FeatureFactsReconciliation, nil) {
		lessonAnalyzedHandler := eventhandler.NewLessonAnalyzedHandler(reconcileFactsCmd, log)
		if err := lessonAnalyzedHandler.Register(eventBus); err != nil {
			return fmt.Errorf("failed to register event handler: %w", err)
		}
	} else {
		slogger.Info("fact reconciliation disabled by feature flag", "flag", config.FeatureFactsReconciliation)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	slogger.Info("initializing HTTP server...")

	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("postgres", handlers.NewPingCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("redis", handlers.NewPingCheck(redisCache))
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpConfig.APIKeys = cfg.HTTP.APIKeys

	httpDeps := httpserver.Dependencies{
		IngestTurn:     ingestTurnCmd,
		ExtractFacts:   extractFactsCmd,
		IncrementUsage: incrementUsageCmd,
		CanSend:        canSendQuery,
		GenerateReport: generateReportQuery,
		LearnerFacts:   learnerFactsQuery,
		Logger:         log,
		HealthChecker:  healthChecker,
	}
	if redisCache != nil && cfg.HTTP.RateLimitPerMinute > 0 {
		httpDeps.RateLimiter = redis.NewRateLimiter(redisCache, cfg.HTTP.RateLimitPerMinute, 0, "api")
	}

	httpServer := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. RUN AND GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	slogger.Info("Daris tutor core API is running", "address", httpServer.Address())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		slogger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slogger.Error("service error", "error", err)
		return err
	}

	slogger.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slogger.Error("failed to stop HTTP server gracefully", "error", err)
		return err
	}

	slogger.Info("shutdown completed successfully")
	return nil
}

// setupSlog configures the process-wide slog logger used by the
// infrastructure layer (event bus, scheduler).
func setupSlog(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
