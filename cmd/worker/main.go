// Package main is the entry point for the Daris tutor core worker.
//
// The worker runs the periodic jobs behind the tutoring API:
//   - the weekly quota reset sweep for dormant profiles
//   - the fact reconciliation pass for recently active learners
//
// Both jobs are idempotent against the API's lazy code paths, so the
// worker and API can run side by side without coordination.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/daris-app/daris-tutor-core/config"
	"github.com/daris-app/daris-tutor-core/internal/application/command"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/internal/infrastructure/messaging"
	"github.com/daris-app/daris-tutor-core/internal/infrastructure/persistence/postgres"
	"github.com/daris-app/daris-tutor-core/internal/infrastructure/scheduler"
	"github.com/daris-app/daris-tutor-core/internal/infrastructure/scheduler/jobs"
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

	slogger.Info("starting Daris tutor core worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
	)

	if !cfg.Scheduler.Enabled {
		slogger.Warn("scheduler disabled by configuration, nothing to do")
		return nil
	}

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

	// The worker also needs an up-to-date schema.
	slogger.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slogger.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REPOSITORIES AND EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	lessonRepo := postgres.NewLessonRepository(dbConn)
	factRepo := postgres.NewFactRepository(dbConn)
	quotaRepo := postgres.NewQuotaRepository(dbConn)

	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = slogger
	eventBusConfig.AsyncMode = false // jobs prefer synchronous, traceable publishes
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() { _ = eventBus.Close() }()

	clock := shared.SystemClock{}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. JOBS
	// ─────────────────────────────────────────────────────────────────────────
	reconcileHandler := command.NewReconcileFactsHandler(factRepo, clock, eventBus, log)

	quotaSweepConfig := jobs.DefaultWeeklyQuotaResetConfig()
	quotaSweepConfig.Timeout = cfg.Scheduler.JobTimeout
	quotaSweepJob := jobs.NewWeeklyQuotaResetJob(quotaRepo, eventBus, clock, slogger, quotaSweepConfig)

	reconcileConfig := jobs.DefaultReconcileFactsConfig()
	reconcileConfig.Lookback = cfg.Scheduler.ReconcileLookback
	reconcileConfig.Concurrency = cfg.Scheduler.ReconcileConcurrency
	reconcileConfig.Timeout = cfg.Scheduler.JobTimeout
	reconcileJob := jobs.NewReconcileFactsJob(lessonRepo, reconcileHandler, clock, slogger, reconcileConfig)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = slogger
	sched := scheduler.NewScheduler(schedConfig)

	// The sweep runs on a cron schedule so it lands on the Sunday-midnight
	// UTC window boundary instead of drifting with the process start time.
	quotaSweepSchedule, err := scheduler.ParseCronExpression(cfg.Scheduler.QuotaSweepCron)
	if err != nil {
		return fmt.Errorf("invalid quota sweep cron expression: %w", err)
	}
	if err := sched.Register(quotaSweepJob, quotaSweepSchedule); err != nil {
		return fmt.Errorf("failed to register quota sweep job: %w", err)
	}

	if cfg.Features.IsEnabled(config.FeatureFactsReconciliation, nil) {
		if err := sched.Register(reconcileJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ReconcileInterval)); err != nil {
			return fmt.Errorf("failed to register reconcile job: %w", err)
		}
	} else {
		slogger.Info("fact reconciliation disabled by feature flag", "flag", config.FeatureFactsReconciliation)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	slogger.Info("Daris tutor core worker is running",
		"quota_sweep_cron", quotaSweepSchedule.String(),
		"reconcile_interval", cfg.Scheduler.ReconcileInterval.String(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	slogger.Info("received shutdown signal", "signal", sig.String())

	slogger.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	if err := sched.Stop(); err != nil {
		slogger.Error("failed to stop scheduler gracefully", "error", err)
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
