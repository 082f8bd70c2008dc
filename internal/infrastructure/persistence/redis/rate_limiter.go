package redis

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter is a fixed-window counter limiter shared across API
// instances. Each key gets up to Limit requests per Window.
type RateLimiter struct {
	cache  *Cache
	limit  int64
	window time.Duration
	action string
}

// NewRateLimiter creates a rate limiter for the given action namespace.
func NewRateLimiter(cache *Cache, limit int, window time.Duration, action string) *RateLimiter {
	if window <= 0 {
		window = TTLRateLimitWindow
	}
	return &RateLimiter{
		cache:  cache,
		limit:  int64(limit),
		window: window,
		action: action,
	}
}

// Allow reports whether the identified caller is under its limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := rl.cache.IncrWithWindow(ctx, RateLimitKey(key, rl.action), rl.window)
	if err != nil {
		return false, err
	}
	return count <= rl.limit, nil
}
