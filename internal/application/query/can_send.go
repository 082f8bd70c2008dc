// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"

	"github.com/daris-app/daris-tutor-core/internal/domain/quota"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CAN SEND QUERY
// Gates one conversational turn against the user's weekly quota window.
// Reads apply the lazy window reset, so a profile untouched since last week
// answers with fresh counters even before the sweep job runs.
// ══════════════════════════════════════════════════════════════════════════════

// CanSendQuery asks whether one more turn may proceed for a user.
type CanSendQuery struct {
	UserID string
}

// Validate validates the query.
func (q CanSendQuery) Validate() error {
	if q.UserID == "" {
		return shared.NewDomainError("quota", "CanSend", shared.ErrInvalidID, "user ID is required")
	}
	return nil
}

// DecisionCache stores short-lived allow decisions so the hot gating path
// can skip a store round trip. Implementations must never cache denials.
type DecisionCache interface {
	Get(ctx context.Context, userID string) (*quota.Decision, error)
	Set(ctx context.Context, userID string, d quota.Decision) error
}

// CanSendHandler handles CanSendQuery.
type CanSendHandler struct {
	profiles    quota.Repository
	defaultTier quota.Tier
	cache       DecisionCache
	clock       shared.Clock
	publisher   shared.EventPublisher
	log         *logger.Logger
}

// NewCanSendHandler creates a CanSendHandler. Users seen for the first time
// get a profile on defaultTier, so the first check never fails on absence.
func NewCanSendHandler(
	profiles quota.Repository,
	defaultTier quota.Tier,
	clock shared.Clock,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *CanSendHandler {
	if !defaultTier.IsValid() {
		defaultTier = quota.TierStudent
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &CanSendHandler{
		profiles:    profiles,
		defaultTier: defaultTier,
		clock:       clock,
		publisher:   publisher,
		log:         log,
	}
}

// WithDecisionCache attaches a decision snapshot cache. Cache failures
// degrade to store reads; the cache never becomes the source of truth.
func (h *CanSendHandler) WithDecisionCache(cache DecisionCache) *CanSendHandler {
	h.cache = cache
	return h
}

// Handle answers the gate question. Denials are reported in the decision,
// never as an error: an exhausted quota is a valid answer, not a failure.
func (h *CanSendHandler) Handle(ctx context.Context, q CanSendQuery) (quota.Decision, error) {
	if err := q.Validate(); err != nil {
		return quota.Decision{}, err
	}
	userID := shared.UserID(q.UserID)
	now := h.clock.Now()

	if h.cache != nil {
		if d, err := h.cache.Get(ctx, q.UserID); err == nil && d != nil && d.Allowed && now.Before(d.ResetAt) {
			return *d, nil
		}
	}

	p, err := h.profiles.GetByUser(ctx, userID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return quota.Decision{}, err
		}
		p, err = quota.NewProfile(userID, h.defaultTier, now)
		if err != nil {
			return quota.Decision{}, err
		}
		if err := h.profiles.Create(ctx, p); err != nil {
			// Lost the insert race: re-read the winner's row.
			p, err = h.profiles.GetByUser(ctx, userID)
			if err != nil {
				return quota.Decision{}, shared.WrapError("quota", "CanSend", shared.ErrStoreUnavailable, "failed to ensure profile", err)
			}
		}
	}

	if p.NeedsReset(now) {
		reset, refreshed, err := h.profiles.ResetIfDue(ctx, userID, now)
		if err != nil {
			return quota.Decision{}, err
		}
		if refreshed != nil {
			p = refreshed
		}
		if reset {
			h.log.Info("quota window reset",
				logger.UserID(q.UserID),
				logger.Time("next_reset_at", p.ResetAt),
			)
			if err := h.publisher.Publish(shared.NewQuotaResetEvent(q.UserID, p.ResetAt, "lazy")); err != nil {
				h.log.Warn("failed to publish quota reset event", logger.Err(err))
			}
		}
	}

	d := p.Decide()
	if h.cache != nil && d.Allowed {
		if err := h.cache.Set(ctx, q.UserID, d); err != nil {
			h.log.Warn("failed to cache quota decision", logger.UserID(q.UserID), logger.Err(err))
		}
	}
	if !d.Allowed {
		h.log.Info("turn denied by quota",
			logger.UserID(q.UserID),
			logger.Tier(p.Tier.String()),
			logger.String("reason", d.Reason),
		)
		if err := h.publisher.Publish(shared.NewQuotaDeniedEvent(q.UserID, d.Reason, d.ResetAt)); err != nil {
			h.log.Warn("failed to publish quota denied event", logger.Err(err))
		}
	}
	return d, nil
}
