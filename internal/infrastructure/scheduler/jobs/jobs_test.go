package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daris-app/daris-tutor-core/internal/application/command"
	"github.com/daris-app/daris-tutor-core/internal/domain/fact"
	"github.com/daris-app/daris-tutor-core/internal/domain/lesson"
	"github.com/daris-app/daris-tutor-core/internal/domain/quota"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

var testNow = time.Date(2026, time.January, 12, 3, 0, 0, 0, time.UTC) // Monday

const (
	userA = shared.UserID("b7e9a2d4-1c3f-4e5a-9b8c-7d6e5f4a3b2c")
	userB = shared.UserID("c8f0b3e5-2d40-4f6b-ac9d-8e7f6a5b4c3d")
)

// --- quota fake ---

type sweepQuotaRepo struct {
	profiles map[shared.UserID]*quota.Profile
	err      error
}

var _ quota.Repository = (*sweepQuotaRepo)(nil)

func (r *sweepQuotaRepo) GetByUser(_ context.Context, userID shared.UserID) (*quota.Profile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return p, nil
}

func (r *sweepQuotaRepo) Create(_ context.Context, p *quota.Profile) error {
	r.profiles[p.UserID] = p
	return nil
}

func (r *sweepQuotaRepo) IncrementUsage(_ context.Context, userID shared.UserID, tokens int, incrementMessage bool, now time.Time) (*quota.Profile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	p.Reset(now)
	p.ApplyUsage(tokens, incrementMessage, now)
	return p, nil
}

func (r *sweepQuotaRepo) ResetIfDue(_ context.Context, userID shared.UserID, now time.Time) (bool, *quota.Profile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return false, nil, shared.ErrProfileNotFound
	}
	return p.Reset(now), p, nil
}

func (r *sweepQuotaRepo) ResetAllDue(_ context.Context, now time.Time) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n := 0
	for _, p := range r.profiles {
		if p.Reset(now) {
			n++
		}
	}
	return n, nil
}

type capturingPublisher struct {
	events []shared.Event
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func seedProfile(t *testing.T, repo *sweepQuotaRepo, userID shared.UserID, createdAt time.Time) *quota.Profile {
	t.Helper()
	p, err := quota.NewProfile(userID, quota.TierStudent, createdAt)
	require.NoError(t, err)
	p.MessagesUsed = 50
	repo.profiles[userID] = p
	return p
}

func TestWeeklyQuotaReset_SweepsExpiredProfiles(t *testing.T) {
	repo := &sweepQuotaRepo{profiles: make(map[shared.UserID]*quota.Profile)}
	// Created last Wednesday: expired at testNow (Monday).
	expired := seedProfile(t, repo, userA, time.Date(2026, time.January, 7, 12, 0, 0, 0, time.UTC))
	// Created after the boundary: still inside its window.
	fresh := seedProfile(t, repo, userB, testNow.Add(-time.Hour))

	pub := &capturingPublisher{}
	job := NewWeeklyQuotaResetJob(repo, pub, shared.FixedClock{T: testNow}, nil, DefaultWeeklyQuotaResetConfig())

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 0, expired.MessagesUsed)
	assert.Equal(t, time.Date(2026, time.January, 18, 0, 0, 0, 0, time.UTC), expired.ResetAt)
	assert.Equal(t, 50, fresh.MessagesUsed)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.ResetCount)

	require.Len(t, pub.events, 1)
	reset := pub.events[0].(shared.QuotaResetEvent)
	assert.Equal(t, "sweep", reset.Source)
}

func TestWeeklyQuotaReset_NothingDueEmitsNoEvent(t *testing.T) {
	repo := &sweepQuotaRepo{profiles: make(map[shared.UserID]*quota.Profile)}
	seedProfile(t, repo, userA, testNow.Add(-time.Hour))

	pub := &capturingPublisher{}
	job := NewWeeklyQuotaResetJob(repo, pub, shared.FixedClock{T: testNow}, nil, DefaultWeeklyQuotaResetConfig())

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, pub.events)
	assert.Equal(t, 0, job.LastStats().ResetCount)
}

func TestWeeklyQuotaReset_SweepIsIdempotent(t *testing.T) {
	repo := &sweepQuotaRepo{profiles: make(map[shared.UserID]*quota.Profile)}
	seedProfile(t, repo, userA, time.Date(2026, time.January, 7, 12, 0, 0, 0, time.UTC))

	job := NewWeeklyQuotaResetJob(repo, nil, shared.FixedClock{T: testNow}, nil, DefaultWeeklyQuotaResetConfig())

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, job.LastStats().ResetCount)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 0, job.LastStats().ResetCount)
}

func TestWeeklyQuotaReset_StoreFailure(t *testing.T) {
	repo := &sweepQuotaRepo{profiles: make(map[shared.UserID]*quota.Profile), err: errors.New("connection refused")}
	job := NewWeeklyQuotaResetJob(repo, nil, shared.FixedClock{T: testNow}, nil, DefaultWeeklyQuotaResetConfig())

	assert.Error(t, job.Run(context.Background()))
	assert.Nil(t, job.LastStats())
}

// --- reconciliation sweep ---

type sweepLessonRepo struct {
	users []shared.UserID
}

var _ lesson.Repository = (*sweepLessonRepo)(nil)

func (r *sweepLessonRepo) Upsert(context.Context, *lesson.Lesson) error { return nil }

func (r *sweepLessonRepo) GetBySession(context.Context, shared.SessionID) (*lesson.Lesson, error) {
	return nil, shared.ErrLessonNotFound
}

func (r *sweepLessonRepo) MarkAnalyzed(context.Context, shared.SessionID, string, time.Time) error {
	return nil
}

func (r *sweepLessonRepo) ListUsersAnalyzedSince(context.Context, time.Time) ([]shared.UserID, error) {
	return r.users, nil
}

type sweepFactRepo struct {
	facts map[shared.UserID][]*fact.LearnerFact
}

var _ fact.Repository = (*sweepFactRepo)(nil)

func (r *sweepFactRepo) GetActiveByUser(ctx context.Context, userID shared.UserID) ([]*fact.LearnerFact, error) {
	return r.GetActiveByUserAndType(ctx, userID, "")
}

func (r *sweepFactRepo) GetActiveByUserAndType(_ context.Context, userID shared.UserID, factType fact.Type) ([]*fact.LearnerFact, error) {
	var out []*fact.LearnerFact
	for _, f := range r.facts[userID] {
		if f.IsActive && (factType == "" || f.FactType == factType) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *sweepFactRepo) MergeCandidate(_ context.Context, candidate *fact.LearnerFact, _ fact.Matcher, _ string, _ time.Time) (*fact.LearnerFact, bool, error) {
	r.facts[candidate.UserID] = append(r.facts[candidate.UserID], candidate)
	return candidate, true, nil
}

func (r *sweepFactRepo) Deactivate(_ context.Context, factID string, _ time.Time) error {
	for _, facts := range r.facts {
		for _, f := range facts {
			if f.ID == factID {
				f.Deactivate()
				return nil
			}
		}
	}
	return shared.ErrFactNotFound
}

func seedSupersededPair(t *testing.T, repo *sweepFactRepo, userID shared.UserID) {
	t.Helper()
	struggle, err := fact.New(userID, fact.TypeStruggle, shared.CategoryGrammar, "", "Struggles with grammatical cases", nil, "", testNow.Add(-96*time.Hour))
	require.NoError(t, err)
	struggle.ID = string(userID) + "/struggle"
	struggle.ObservationCount = 2
	struggle.LastConfirmed = testNow.Add(-96 * time.Hour)

	strength, err := fact.New(userID, fact.TypeStrength, shared.CategoryGrammar, "", "Shows strength in grammatical cases", nil, "", testNow.Add(-time.Hour))
	require.NoError(t, err)
	strength.ID = string(userID) + "/strength"
	strength.ObservationCount = 3
	strength.LastConfirmed = testNow.Add(-time.Hour)

	repo.facts[userID] = []*fact.LearnerFact{struggle, strength}
}

func TestReconcileFactsJob_SweepsRecentUsers(t *testing.T) {
	factRepo := &sweepFactRepo{facts: make(map[shared.UserID][]*fact.LearnerFact)}
	seedSupersededPair(t, factRepo, userA)
	seedSupersededPair(t, factRepo, userB)

	handler := command.NewReconcileFactsHandler(factRepo, shared.FixedClock{T: testNow}, nil, nil)
	job := NewReconcileFactsJob(
		&sweepLessonRepo{users: []shared.UserID{userA, userB}},
		handler,
		shared.FixedClock{T: testNow},
		nil,
		DefaultReconcileFactsConfig(),
	)

	require.NoError(t, job.Run(context.Background()))

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 2, stats.FactsDeactivated)
	assert.Equal(t, 0, stats.FailedCount)

	for _, u := range []shared.UserID{userA, userB} {
		struggles, err := factRepo.GetActiveByUserAndType(context.Background(), u, fact.TypeStruggle)
		require.NoError(t, err)
		assert.Empty(t, struggles, "user %s", u)
	}
}

func TestReconcileFactsJob_NoRecentUsers(t *testing.T) {
	handler := command.NewReconcileFactsHandler(
		&sweepFactRepo{facts: make(map[shared.UserID][]*fact.LearnerFact)},
		shared.FixedClock{T: testNow}, nil, nil,
	)
	job := NewReconcileFactsJob(&sweepLessonRepo{}, handler, shared.FixedClock{T: testNow}, nil, DefaultReconcileFactsConfig())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 0, job.LastStats().TotalUsers)
}
