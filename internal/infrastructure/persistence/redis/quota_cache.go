package redis

import (
	"context"
	"errors"

	"github.com/daris-app/daris-tutor-core/internal/domain/quota"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUOTA SNAPSHOT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// QuotaCache stores short-lived quota decision snapshots so the hot gating
// path can skip a PostgreSQL round trip. The TTL is deliberately short and
// the cache is dropped on every usage increment; PostgreSQL stays the
// source of truth for denial decisions near the limit.
type QuotaCache struct {
	cache *Cache
}

// NewQuotaCache creates a new quota snapshot cache.
func NewQuotaCache(cache *Cache) *QuotaCache {
	return &QuotaCache{cache: cache}
}

// Get returns the cached decision or shared.ErrNotFound.
func (q *QuotaCache) Get(ctx context.Context, userID string) (*quota.Decision, error) {
	var d quota.Decision
	err := q.cache.Get(ctx, QuotaKey(userID), &d)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// Set stores a decision snapshot. Denials are never cached: a denied user
// who upgrades tiers or crosses the window must see the change immediately.
func (q *QuotaCache) Set(ctx context.Context, userID string, d quota.Decision) error {
	if !d.Allowed {
		return nil
	}
	return q.cache.Set(ctx, QuotaKey(userID), d, TTLQuotaSnapshot)
}

// Invalidate drops the snapshot after a usage increment.
func (q *QuotaCache) Invalidate(ctx context.Context, userID string) error {
	return q.cache.Delete(ctx, QuotaKey(userID))
}
