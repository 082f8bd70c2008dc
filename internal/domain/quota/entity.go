// Package quota contains the domain entity for per-user rolling weekly usage
// windows. A window runs Sunday-to-Sunday UTC; counters only move up inside a
// window and drop to zero exactly once when it rolls over.
package quota

import (
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/pkg/timeutil"
)

// Tier is a named usage plan.
type Tier string

const (
	TierStudent   Tier = "student"
	TierScholar   Tier = "scholar"
	TierDedicated Tier = "dedicated"
)

// Limits holds the fixed ceilings for one tier.
type Limits struct {
	MessageQuota int
	TokenQuota   int
}

// tierLimits is the fixed tier lookup table.
var tierLimits = map[Tier]Limits{
	TierStudent:   {MessageQuota: 100, TokenQuota: 300_000},
	TierScholar:   {MessageQuota: 250, TokenQuota: 750_000},
	TierDedicated: {MessageQuota: 600, TokenQuota: 1_500_000},
}

// IsValid checks if the tier is known.
func (t Tier) IsValid() bool {
	_, ok := tierLimits[t]
	return ok
}

// Limits returns the ceilings for the tier.
// Unknown tiers fall back to the student plan.
func (t Tier) Limits() Limits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierStudent]
}

// String returns the string representation.
func (t Tier) String() string {
	return string(t)
}

// Denial reasons returned by CanSend.
const (
	ReasonMessageLimit = "message_limit"
	ReasonTokenLimit   = "token_limit"
)

// Profile is one user's usage window.
type Profile struct {
	UserID shared.UserID
	Tier   Tier

	MessagesUsed int
	TokensUsed   int

	// ResetAt is the next Sunday 00:00 UTC after profile creation or the
	// last reset. Counters are meaningless past this boundary until a
	// reset has been applied.
	ResetAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProfile creates a fresh profile whose first window ends at the next
// Sunday midnight UTC after now.
func NewProfile(userID shared.UserID, tier Tier, now time.Time) (*Profile, error) {
	if userID.IsEmpty() {
		return nil, shared.NewDomainError("quota", "NewProfile", shared.ErrInvalidID, "user ID is required")
	}
	if !tier.IsValid() {
		return nil, shared.ErrInvalidTier
	}
	return &Profile{
		UserID:    userID,
		Tier:      tier,
		ResetAt:   timeutil.NextSunday(now),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NeedsReset reports whether the window has rolled over at time now.
func (p *Profile) NeedsReset(now time.Time) bool {
	return timeutil.WindowExpired(now, p.ResetAt)
}

// Reset rolls the window over: counters to zero, boundary to the next
// Sunday after now. Calling it when the window has not expired is a no-op,
// which makes the lazy reset and the weekly sweep safe to race.
func (p *Profile) Reset(now time.Time) bool {
	if !p.NeedsReset(now) {
		return false
	}
	p.MessagesUsed = 0
	p.TokensUsed = 0
	p.ResetAt = timeutil.NextSunday(now)
	p.UpdatedAt = now
	return true
}

// ApplyUsage adds one turn's usage to the counters. Counters never
// decrease inside a window; negative token counts are rejected upstream.
func (p *Profile) ApplyUsage(tokens int, incrementMessage bool, now time.Time) {
	if incrementMessage {
		p.MessagesUsed++
	}
	if tokens > 0 {
		p.TokensUsed += tokens
	}
	p.UpdatedAt = now
}

// MessagesRemaining returns the messages left in the window, floored at 0.
func (p *Profile) MessagesRemaining() int {
	return remaining(p.Tier.Limits().MessageQuota, p.MessagesUsed)
}

// TokensRemaining returns the tokens left in the window, floored at 0.
func (p *Profile) TokensRemaining() int {
	return remaining(p.Tier.Limits().TokenQuota, p.TokensUsed)
}

// Decision is the result of a CanSend check, shaped for the request-handling
// collaborator that gates each conversational turn.
type Decision struct {
	Allowed           bool
	Reason            string // empty when allowed
	MessagesRemaining int
	TokensRemaining   int
	ResetAt           time.Time
}

// Decide evaluates whether one more turn may proceed. Message exhaustion is
// checked before token exhaustion. Decide assumes any due reset has already
// been applied.
func (p *Profile) Decide() Decision {
	d := Decision{
		MessagesRemaining: p.MessagesRemaining(),
		TokensRemaining:   p.TokensRemaining(),
		ResetAt:           p.ResetAt,
	}
	switch {
	case d.MessagesRemaining <= 0:
		d.Reason = ReasonMessageLimit
	case d.TokensRemaining <= 0:
		d.Reason = ReasonTokenLimit
	default:
		d.Allowed = true
	}
	return d
}

func remaining(quota, used int) int {
	r := quota - used
	if r < 0 {
		return 0
	}
	return r
}
