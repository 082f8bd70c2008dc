package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/application/command"
	"github.com/daris-app/daris-tutor-core/internal/domain/lesson"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE FACTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileFactsJob runs the struggle-vs-strength reconciliation pass for
// every learner with recently analyzed lessons. Reconciliation also runs
// inline after each lesson analysis; this sweep covers learners whose
// inline pass failed or whose strengths accumulated across several lessons
// before crossing the supersession threshold.
type ReconcileFactsJob struct {
	lessons   lesson.Repository
	reconcile *command.ReconcileFactsHandler
	clock     shared.Clock
	logger    *slog.Logger

	config ReconcileFactsConfig

	lastStats atomic.Value // *ReconcileStats
}

// ReconcileFactsConfig contains configuration for the reconciliation sweep.
type ReconcileFactsConfig struct {
	// Lookback bounds the scan to users with lessons analyzed this recently.
	Lookback time.Duration

	// Concurrency is the number of users reconciled in parallel.
	Concurrency int

	// Timeout is the maximum duration for the entire sweep.
	Timeout time.Duration
}

// DefaultReconcileFactsConfig returns sensible defaults.
func DefaultReconcileFactsConfig() ReconcileFactsConfig {
	return ReconcileFactsConfig{
		Lookback:    24 * time.Hour,
		Concurrency: 4,
		Timeout:     5 * time.Minute,
	}
}

// ReconcileStats contains statistics from a reconciliation sweep.
type ReconcileStats struct {
	StartedAt        time.Time
	CompletedAt      time.Time
	Duration         time.Duration
	TotalUsers       int
	FactsDeactivated int
	FailedCount      int
}

// NewReconcileFactsJob creates a new reconciliation sweep job.
func NewReconcileFactsJob(
	lessons lesson.Repository,
	reconcile *command.ReconcileFactsHandler,
	clock shared.Clock,
	logger *slog.Logger,
	config ReconcileFactsConfig,
) *ReconcileFactsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.Lookback <= 0 {
		config.Lookback = 24 * time.Hour
	}

	return &ReconcileFactsJob{
		lessons:   lessons,
		reconcile: reconcile,
		clock:     clock,
		logger:    logger,
		config:    config,
	}
}

// Name returns the job name.
func (j *ReconcileFactsJob) Name() string {
	return "reconcile_facts"
}

// Description returns a human-readable description.
func (j *ReconcileFactsJob) Description() string {
	return "Retires superseded struggle facts for learners with recently analyzed lessons"
}

// Run executes the reconciliation sweep.
func (j *ReconcileFactsJob) Run(ctx context.Context) error {
	startedAt := j.clock.Now()
	stats := &ReconcileStats{StartedAt: startedAt}

	j.logger.Info("starting reconcile_facts job", "lookback", j.config.Lookback.String())

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	users, err := j.lessons.ListUsersAnalyzedSince(ctx, startedAt.Add(-j.config.Lookback))
	if err != nil {
		return fmt.Errorf("failed to list users to reconcile: %w", err)
	}

	stats.TotalUsers = len(users)
	if stats.TotalUsers == 0 {
		stats.CompletedAt = j.clock.Now()
		stats.Duration = stats.CompletedAt.Sub(startedAt)
		j.lastStats.Store(stats)
		return nil
	}

	j.reconcileConcurrently(ctx, users, stats)

	stats.CompletedAt = j.clock.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	j.logger.Info("reconcile_facts job completed",
		"users", stats.TotalUsers,
		"deactivated", stats.FactsDeactivated,
		"failed", stats.FailedCount,
		"duration", stats.Duration.String(),
	)

	if stats.FailedCount > 0 && stats.FailedCount == stats.TotalUsers {
		return fmt.Errorf("reconciliation failed for all %d users", stats.TotalUsers)
	}

	return nil
}

// reconcileConcurrently runs the per-user pass on a bounded worker pool.
func (j *ReconcileFactsJob) reconcileConcurrently(ctx context.Context, users []shared.UserID, stats *ReconcileStats) {
	var (
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, j.config.Concurrency)
		mu        sync.Mutex
	)

	for _, u := range users {
		select {
		case <-ctx.Done():
			return
		default:
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(userID shared.UserID) {
			defer wg.Done()
			defer func() { <-semaphore }()

			result, err := j.reconcile.Handle(ctx, command.ReconcileFactsCommand{
				UserID: userID.String(),
			})

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				stats.FailedCount++
				j.logger.Error("failed to reconcile user facts",
					"user_id", userID.String(),
					"error", err,
				)
				return
			}
			stats.FactsDeactivated += result.FactsDeactivated
		}(u)
	}

	wg.Wait()
}

// LastStats returns statistics from the last sweep run.
func (j *ReconcileFactsJob) LastStats() *ReconcileStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*ReconcileStats)
}
