package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daris-app/daris-tutor-core/internal/domain/quota"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

const testUser = "b7e9a2d4-1c3f-4e5a-9b8c-7d6e5f4a3b2c"

// Wednesday; the window then ends Sunday 2026-01-11 00:00 UTC.
var testNow = time.Date(2026, time.January, 7, 12, 0, 0, 0, time.UTC)

func TestCanSend_FirstContactCreatesProfile(t *testing.T) {
	repo := newMemQuotaRepo()
	h := NewCanSendHandler(repo, quota.TierStudent, shared.FixedClock{T: testNow}, nil, nil)

	d, err := h.Handle(context.Background(), CanSendQuery{UserID: testUser})
	require.NoError(t, err)

	assert.True(t, d.Allowed)
	assert.Equal(t, 100, d.MessagesRemaining)
	assert.Equal(t, 300_000, d.TokensRemaining)
	assert.Equal(t, time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC), d.ResetAt)

	// The profile is durable: the next check reads it back.
	p, err := repo.GetByUser(context.Background(), shared.UserID(testUser))
	require.NoError(t, err)
	assert.Equal(t, quota.TierStudent, p.Tier)
}

func TestCanSend_DenialIsAnAnswerNotAnError(t *testing.T) {
	repo := newMemQuotaRepo()
	p, err := quota.NewProfile(shared.UserID(testUser), quota.TierStudent, testNow)
	require.NoError(t, err)
	p.MessagesUsed = 100
	require.NoError(t, repo.Create(context.Background(), p))

	pub := &capturingPublisher{}
	h := NewCanSendHandler(repo, quota.TierStudent, shared.FixedClock{T: testNow}, pub, nil)

	d, err := h.Handle(context.Background(), CanSendQuery{UserID: testUser})
	require.NoError(t, err)

	assert.False(t, d.Allowed)
	assert.Equal(t, quota.ReasonMessageLimit, d.Reason)
	assert.Equal(t, 0, d.MessagesRemaining)
	require.Len(t, pub.ofType(shared.EventQuotaDenied), 1)
}

func TestCanSend_MessageLimitCheckedBeforeTokenLimit(t *testing.T) {
	repo := newMemQuotaRepo()
	p, err := quota.NewProfile(shared.UserID(testUser), quota.TierStudent, testNow)
	require.NoError(t, err)
	p.MessagesUsed = 100
	p.TokensUsed = 300_000
	require.NoError(t, repo.Create(context.Background(), p))

	h := NewCanSendHandler(repo, quota.TierStudent, shared.FixedClock{T: testNow}, nil, nil)
	d, err := h.Handle(context.Background(), CanSendQuery{UserID: testUser})
	require.NoError(t, err)

	assert.Equal(t, quota.ReasonMessageLimit, d.Reason)
}

func TestCanSend_LazyResetRefreshesExpiredWindow(t *testing.T) {
	repo := newMemQuotaRepo()
	p, err := quota.NewProfile(shared.UserID(testUser), quota.TierStudent, testNow)
	require.NoError(t, err)
	p.MessagesUsed = 100
	p.TokensUsed = 300_000
	require.NoError(t, repo.Create(context.Background(), p))

	// Monday after the boundary: an exhausted profile answers fresh
	// before any sweep job has run.
	monday := time.Date(2026, time.January, 12, 9, 0, 0, 0, time.UTC)
	pub := &capturingPublisher{}
	h := NewCanSendHandler(repo, quota.TierStudent, shared.FixedClock{T: monday}, pub, nil)

	d, err := h.Handle(context.Background(), CanSendQuery{UserID: testUser})
	require.NoError(t, err)

	assert.True(t, d.Allowed)
	assert.Equal(t, 100, d.MessagesRemaining)
	assert.Equal(t, time.Date(2026, time.January, 18, 0, 0, 0, 0, time.UTC), d.ResetAt)
	require.Len(t, pub.ofType(shared.EventQuotaReset), 1)

	reset := pub.ofType(shared.EventQuotaReset)[0].(shared.QuotaResetEvent)
	assert.Equal(t, "lazy", reset.Source)
}

func TestCanSend_InvalidDefaultTierFallsBackToStudent(t *testing.T) {
	repo := newMemQuotaRepo()
	h := NewCanSendHandler(repo, quota.Tier("platinum"), shared.FixedClock{T: testNow}, nil, nil)

	d, err := h.Handle(context.Background(), CanSendQuery{UserID: testUser})
	require.NoError(t, err)
	assert.Equal(t, 100, d.MessagesRemaining)
}

func TestCanSend_MissingUserID(t *testing.T) {
	h := NewCanSendHandler(newMemQuotaRepo(), quota.TierStudent, shared.FixedClock{T: testNow}, nil, nil)
	_, err := h.Handle(context.Background(), CanSendQuery{})
	assert.True(t, shared.IsValidation(err))
}

func TestCanSend_DecisionCacheHitSkipsStore(t *testing.T) {
	repo := newMemQuotaRepo()
	cache := newMemDecisionCache()
	h := NewCanSendHandler(repo, quota.TierStudent, shared.FixedClock{T: testNow}, nil, nil).
		WithDecisionCache(cache)

	first, err := h.Handle(context.Background(), CanSendQuery{UserID: testUser})
	require.NoError(t, err)
	require.True(t, first.Allowed)

	// Remove the profile: a second answer can only come from the cache.
	delete(repo.profiles, shared.UserID(testUser))

	second, err := h.Handle(context.Background(), CanSendQuery{UserID: testUser})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.hits)
}

func TestCanSend_StaleCachedDecisionIgnored(t *testing.T) {
	repo := newMemQuotaRepo()
	cache := newMemDecisionCache()

	// Cached decision whose window boundary has already passed.
	cache.decisions[testUser] = quota.Decision{
		Allowed:           true,
		MessagesRemaining: 3,
		TokensRemaining:   1000,
		ResetAt:           testNow.Add(-time.Hour),
	}

	h := NewCanSendHandler(repo, quota.TierStudent, shared.FixedClock{T: testNow}, nil, nil).
		WithDecisionCache(cache)

	d, err := h.Handle(context.Background(), CanSendQuery{UserID: testUser})
	require.NoError(t, err)

	// A fresh profile answer, not the stale snapshot.
	assert.Equal(t, 100, d.MessagesRemaining)
	assert.Equal(t, time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC), d.ResetAt)
}
