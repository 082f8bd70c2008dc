package command

import (
	"context"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/quota"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// INCREMENT USAGE COMMAND
// Records one turn's consumption against the user's rolling weekly window.
// The store applies any due window reset and the increment in one atomic
// operation, so concurrent turns never under-count.
// ══════════════════════════════════════════════════════════════════════════════

// IncrementUsageCommand carries one turn's consumption.
type IncrementUsageCommand struct {
	UserID string

	// Tokens is the turn's combined prompt+completion token count.
	Tokens int

	// IncrementMessage is false for non-message usage such as background
	// report generation charged to the user.
	IncrementMessage bool
}

// Validate validates the command.
func (c IncrementUsageCommand) Validate() error {
	if c.UserID == "" {
		return shared.NewDomainError("quota", "Increment", shared.ErrInvalidID, "user ID is required")
	}
	if c.Tokens < 0 {
		return shared.ErrNegativeTokens
	}
	return nil
}

// DecisionInvalidator drops a cached allow decision after an increment,
// so the next gate check sees fresh counters.
type DecisionInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// IncrementUsageHandler handles IncrementUsageCommand.
type IncrementUsageHandler struct {
	profiles    quota.Repository
	defaultTier quota.Tier
	invalidator DecisionInvalidator
	clock       shared.Clock
	publisher   shared.EventPublisher
	log         *logger.Logger
}

// NewIncrementUsageHandler creates an IncrementUsageHandler. Users seen for
// the first time get a profile on defaultTier.
func NewIncrementUsageHandler(
	profiles quota.Repository,
	defaultTier quota.Tier,
	clock shared.Clock,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *IncrementUsageHandler {
	if !defaultTier.IsValid() {
		defaultTier = quota.TierStudent
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &IncrementUsageHandler{
		profiles:    profiles,
		defaultTier: defaultTier,
		clock:       clock,
		publisher:   publisher,
		log:         log,
	}
}

// WithDecisionInvalidator attaches the cache invalidation hook.
func (h *IncrementUsageHandler) WithDecisionInvalidator(inv DecisionInvalidator) *IncrementUsageHandler {
	h.invalidator = inv
	return h
}

// Handle applies the usage and returns the post-increment profile.
// Usage recording is not a gate: counters may overshoot the quota on the
// turn that crosses it, and the next CanSend check denies.
func (h *IncrementUsageHandler) Handle(ctx context.Context, cmd IncrementUsageCommand) (*quota.Profile, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	userID := shared.UserID(cmd.UserID)
	now := h.clock.Now()

	if err := ensureProfile(ctx, h.profiles, userID, h.defaultTier, now); err != nil {
		return nil, err
	}

	p, err := h.profiles.IncrementUsage(ctx, userID, cmd.Tokens, cmd.IncrementMessage, now)
	if err != nil {
		return nil, shared.WrapError("quota", "IncrementUsage", shared.ErrStoreUnavailable, "failed to increment usage", err)
	}

	if h.invalidator != nil {
		if err := h.invalidator.Invalidate(ctx, cmd.UserID); err != nil {
			h.log.Warn("failed to invalidate quota snapshot", logger.UserID(cmd.UserID), logger.Err(err))
		}
	}

	h.log.Debug("usage incremented",
		logger.UserID(cmd.UserID),
		logger.Tier(p.Tier.String()),
		logger.Int("tokens", cmd.Tokens),
		logger.Int("messages_used", p.MessagesUsed),
		logger.Int("tokens_used", p.TokensUsed),
	)
	return p, nil
}

// ensureProfile creates the user's profile if absent. A concurrent create
// losing the insert race is fine; the winner's row is used.
func ensureProfile(ctx context.Context, profiles quota.Repository, userID shared.UserID, tier quota.Tier, now time.Time) error {
	_, err := profiles.GetByUser(ctx, userID)
	if err == nil {
		return nil
	}
	if !shared.IsNotFound(err) {
		return err
	}
	p, err := quota.NewProfile(userID, tier, now)
	if err != nil {
		return err
	}
	if err := profiles.Create(ctx, p); err != nil {
		// Lost the insert race: the profile exists now, which is all we need.
		if _, getErr := profiles.GetByUser(ctx, userID); getErr == nil {
			return nil
		}
		return shared.WrapError("quota", "Create", shared.ErrStoreUnavailable, "failed to create profile", err)
	}
	return nil
}
