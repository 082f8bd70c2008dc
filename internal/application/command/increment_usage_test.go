package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daris-app/daris-tutor-core/internal/domain/quota"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

func TestIncrementUsage_CreatesProfileOnFirstUse(t *testing.T) {
	repo := newMemQuotaRepo()
	h := NewIncrementUsageHandler(repo, quota.TierStudent, shared.FixedClock{T: testNow}, nil, nil)

	p, err := h.Handle(context.Background(), IncrementUsageCommand{
		UserID:           testUser,
		Tokens:           1500,
		IncrementMessage: true,
	})
	require.NoError(t, err)

	assert.Equal(t, quota.TierStudent, p.Tier)
	assert.Equal(t, 1, p.MessagesUsed)
	assert.Equal(t, 1500, p.TokensUsed)
}

func TestIncrementUsage_BackgroundUsageSkipsMessageCount(t *testing.T) {
	repo := newMemQuotaRepo()
	h := NewIncrementUsageHandler(repo, quota.TierStudent, shared.FixedClock{T: testNow}, nil, nil)

	_, err := h.Handle(context.Background(), IncrementUsageCommand{UserID: testUser, Tokens: 900, IncrementMessage: true})
	require.NoError(t, err)

	p, err := h.Handle(context.Background(), IncrementUsageCommand{UserID: testUser, Tokens: 400, IncrementMessage: false})
	require.NoError(t, err)

	assert.Equal(t, 1, p.MessagesUsed)
	assert.Equal(t, 1300, p.TokensUsed)
}

func TestIncrementUsage_AppliesDueResetFirst(t *testing.T) {
	repo := newMemQuotaRepo()
	h := NewIncrementUsageHandler(repo, quota.TierStudent, shared.FixedClock{T: testNow}, nil, nil)

	_, err := h.Handle(context.Background(), IncrementUsageCommand{UserID: testUser, Tokens: 5000, IncrementMessage: true})
	require.NoError(t, err)

	// The next increment lands after the window boundary: the reset and
	// the increment are one operation, so counters restart at this turn.
	nextWeek := time.Date(2026, time.January, 12, 9, 0, 0, 0, time.UTC)
	lateHandler := NewIncrementUsageHandler(repo, quota.TierStudent, shared.FixedClock{T: nextWeek}, nil, nil)

	p, err := lateHandler.Handle(context.Background(), IncrementUsageCommand{UserID: testUser, Tokens: 700, IncrementMessage: true})
	require.NoError(t, err)

	assert.Equal(t, 1, p.MessagesUsed)
	assert.Equal(t, 700, p.TokensUsed)
	assert.Equal(t, time.Date(2026, time.January, 18, 0, 0, 0, 0, time.UTC), p.ResetAt)
}

func TestIncrementUsage_NegativeTokensRejected(t *testing.T) {
	h := NewIncrementUsageHandler(newMemQuotaRepo(), quota.TierStudent, shared.FixedClock{T: testNow}, nil, nil)

	_, err := h.Handle(context.Background(), IncrementUsageCommand{UserID: testUser, Tokens: -1})
	assert.ErrorIs(t, err, shared.ErrNegativeTokens)
}

type recordingInvalidator struct {
	users []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID string) error {
	r.users = append(r.users, userID)
	return nil
}

func TestIncrementUsage_InvalidatesDecisionCache(t *testing.T) {
	repo := newMemQuotaRepo()
	inv := &recordingInvalidator{}
	h := NewIncrementUsageHandler(repo, quota.TierStudent, shared.FixedClock{T: testNow}, nil, nil).
		WithDecisionInvalidator(inv)

	_, err := h.Handle(context.Background(), IncrementUsageCommand{UserID: testUser, Tokens: 10, IncrementMessage: true})
	require.NoError(t, err)

	assert.Equal(t, []string{testUser}, inv.users)
}
