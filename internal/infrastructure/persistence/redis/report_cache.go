package redis

import (
	"context"
	"errors"

	"github.com/daris-app/daris-tutor-core/internal/application/query"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ReportCache implements query.ReportCache on Redis. A lesson's report only
// changes if new observations arrive after generation, so ingest paths call
// Invalidate when they touch an already-reported session.
type ReportCache struct {
	cache *Cache
}

var _ query.ReportCache = (*ReportCache)(nil)

// NewReportCache creates a new report cache.
func NewReportCache(cache *Cache) *ReportCache {
	return &ReportCache{cache: cache}
}

// Get returns the cached report or shared.ErrNotFound.
func (r *ReportCache) Get(ctx context.Context, sessionID string) (*query.Report, error) {
	var report query.Report
	err := r.cache.Get(ctx, ReportKey(sessionID), &report)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

// Set stores the report for its session.
func (r *ReportCache) Set(ctx context.Context, report *query.Report) error {
	return r.cache.Set(ctx, ReportKey(report.SessionID), report, TTLReport)
}

// Invalidate drops the cached report for a session.
func (r *ReportCache) Invalidate(ctx context.Context, sessionID string) error {
	return r.cache.Delete(ctx, ReportKey(sessionID))
}
