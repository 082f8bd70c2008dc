// Package jobs contains implementations of scheduled jobs for the Daris
// tutor core: the weekly quota sweep and the periodic fact reconciliation
// pass. Each job is registered with the scheduler in cmd/worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/quota"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY QUOTA RESET JOB
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyQuotaResetJob sweeps all quota profiles whose window boundary has
// passed and resets their counters. The lazy per-user reset on the read
// path already guarantees correctness; this sweep keeps dormant profiles
// from accumulating stale windows and keeps reset_at-based reporting sane.
//
// Both paths are idempotent against each other: a profile reset lazily
// minutes before the sweep simply no longer matches the sweep's predicate.
type WeeklyQuotaResetJob struct {
	profiles  quota.Repository
	publisher shared.EventPublisher
	clock     shared.Clock
	logger    *slog.Logger

	config WeeklyQuotaResetConfig

	lastStats atomic.Value // *QuotaResetStats
}

// WeeklyQuotaResetConfig contains configuration for the sweep job.
type WeeklyQuotaResetConfig struct {
	// Timeout is the maximum duration for the entire sweep.
	Timeout time.Duration
}

// DefaultWeeklyQuotaResetConfig returns sensible defaults.
func DefaultWeeklyQuotaResetConfig() WeeklyQuotaResetConfig {
	return WeeklyQuotaResetConfig{
		Timeout: 2 * time.Minute,
	}
}

// QuotaResetStats contains statistics from a sweep run.
type QuotaResetStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	ResetCount  int
}

// NewWeeklyQuotaResetJob creates a new weekly quota reset job.
func NewWeeklyQuotaResetJob(
	profiles quota.Repository,
	publisher shared.EventPublisher,
	clock shared.Clock,
	logger *slog.Logger,
	config WeeklyQuotaResetConfig,
) *WeeklyQuotaResetJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}

	return &WeeklyQuotaResetJob{
		profiles:  profiles,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		config:    config,
	}
}

// Name returns the job name.
func (j *WeeklyQuotaResetJob) Name() string {
	return "weekly_quota_reset"
}

// Description returns a human-readable description.
func (j *WeeklyQuotaResetJob) Description() string {
	return "Resets usage counters for all quota profiles whose weekly window has expired"
}

// Run executes the sweep.
func (j *WeeklyQuotaResetJob) Run(ctx context.Context) error {
	startedAt := j.clock.Now()
	stats := &QuotaResetStats{StartedAt: startedAt}

	j.logger.Info("starting weekly_quota_reset job")

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	count, err := j.profiles.ResetAllDue(ctx, startedAt)
	if err != nil {
		return fmt.Errorf("quota sweep failed: %w", err)
	}

	stats.ResetCount = count
	stats.CompletedAt = j.clock.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastStats.Store(stats)

	if count > 0 {
		event := shared.NewQuotaResetEvent("", timeutil.NextSunday(startedAt), "sweep")
		if err := j.publisher.Publish(event); err != nil {
			j.logger.Warn("failed to publish quota reset event", "error", err)
		}
	}

	j.logger.Info("weekly_quota_reset job completed",
		"reset_count", count,
		"duration", stats.Duration.String(),
	)

	return nil
}

// LastStats returns statistics from the last sweep run.
func (j *WeeklyQuotaResetJob) LastStats() *QuotaResetStats {
	stats := j.lastStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*QuotaResetStats)
}
