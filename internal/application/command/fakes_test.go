package command

import (
	"context"
	"fmt"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/fact"
	"github.com/daris-app/daris-tutor-core/internal/domain/lesson"
	"github.com/daris-app/daris-tutor-core/internal/domain/observation"
	"github.com/daris-app/daris-tutor-core/internal/domain/quota"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// In-memory repository fakes. They honor the same contracts as the
// PostgreSQL implementations (idempotent MarkAnalyzed, per-lesson merge
// guard, lazy quota reset) minus the locking, which single-goroutine
// tests do not need.

// --- observations ---

type memObservationRepo struct {
	observations []observation.Observation
	appendErr    error
}

var _ observation.Repository = (*memObservationRepo)(nil)

func (r *memObservationRepo) Append(_ context.Context, obs []observation.Observation) (int, error) {
	if r.appendErr != nil {
		return 0, r.appendErr
	}
	r.observations = append(r.observations, obs...)
	return len(obs), nil
}

func (r *memObservationRepo) ListBySession(_ context.Context, sessionID shared.SessionID) ([]observation.Observation, error) {
	var out []observation.Observation
	for _, o := range r.observations {
		if o.SessionID == sessionID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memObservationRepo) ListBySessionAndKind(_ context.Context, sessionID shared.SessionID, kind observation.Kind) ([]observation.Observation, error) {
	var out []observation.Observation
	for _, o := range r.observations {
		if o.SessionID == sessionID && o.Kind == kind {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memObservationRepo) CountBySession(_ context.Context, sessionID shared.SessionID) (int, error) {
	n := 0
	for _, o := range r.observations {
		if o.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

// --- lessons ---

type memLessonRepo struct {
	lessons map[shared.SessionID]*lesson.Lesson
}

var _ lesson.Repository = (*memLessonRepo)(nil)

func newMemLessonRepo() *memLessonRepo {
	return &memLessonRepo{lessons: make(map[shared.SessionID]*lesson.Lesson)}
}

func (r *memLessonRepo) Upsert(_ context.Context, l *lesson.Lesson) error {
	if existing, ok := r.lessons[l.SessionID]; ok {
		existing.AttachUser(l.UserID, l.UpdatedAt)
		return nil
	}
	cp := *l
	r.lessons[l.SessionID] = &cp
	return nil
}

func (r *memLessonRepo) GetBySession(_ context.Context, sessionID shared.SessionID) (*lesson.Lesson, error) {
	l, ok := r.lessons[sessionID]
	if !ok {
		return nil, shared.ErrLessonNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *memLessonRepo) MarkAnalyzed(_ context.Context, sessionID shared.SessionID, summary string, at time.Time) error {
	l, ok := r.lessons[sessionID]
	if !ok {
		return shared.ErrLessonNotFound
	}
	return l.MarkAnalyzed(summary, at)
}

func (r *memLessonRepo) ListUsersAnalyzedSince(_ context.Context, since time.Time) ([]shared.UserID, error) {
	seen := make(map[shared.UserID]bool)
	var out []shared.UserID
	for _, l := range r.lessons {
		if l.AnalyzedAt == nil || l.AnalyzedAt.Before(since) || l.UserID.IsEmpty() || seen[l.UserID] {
			continue
		}
		seen[l.UserID] = true
		out = append(out, l.UserID)
	}
	return out, nil
}

// --- facts ---

type memFactRepo struct {
	facts  []*fact.LearnerFact
	nextID int
}

var _ fact.Repository = (*memFactRepo)(nil)

func (r *memFactRepo) GetActiveByUser(_ context.Context, userID shared.UserID) ([]*fact.LearnerFact, error) {
	var out []*fact.LearnerFact
	for _, f := range r.facts {
		if f.UserID == userID && f.IsActive {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memFactRepo) GetActiveByUserAndType(_ context.Context, userID shared.UserID, factType fact.Type) ([]*fact.LearnerFact, error) {
	var out []*fact.LearnerFact
	for _, f := range r.facts {
		if f.UserID == userID && f.FactType == factType && f.IsActive {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memFactRepo) MergeCandidate(_ context.Context, candidate *fact.LearnerFact, m fact.Matcher, sourceLessonID string, at time.Time) (*fact.LearnerFact, bool, error) {
	for _, f := range r.facts {
		if !f.IsActive || f.UserID != candidate.UserID ||
			f.FactType != candidate.FactType || f.Category != candidate.Category {
			continue
		}
		if m.SameFact(f, candidate) {
			f.Reinforce(candidate, sourceLessonID, at)
			return f, false, nil
		}
	}

	r.nextID++
	candidate.ID = fmt.Sprintf("fact-%d", r.nextID)
	if sourceLessonID != "" {
		candidate.SourceLessonIDs = []string{sourceLessonID}
	}
	r.facts = append(r.facts, candidate)
	return candidate, true, nil
}

func (r *memFactRepo) Deactivate(_ context.Context, factID string, _ time.Time) error {
	for _, f := range r.facts {
		if f.ID == factID {
			f.Deactivate()
			return nil
		}
	}
	return shared.ErrFactNotFound
}

// --- quota profiles ---

type memQuotaRepo struct {
	profiles map[shared.UserID]*quota.Profile
}

var _ quota.Repository = (*memQuotaRepo)(nil)

func newMemQuotaRepo() *memQuotaRepo {
	return &memQuotaRepo{profiles: make(map[shared.UserID]*quota.Profile)}
}

func (r *memQuotaRepo) GetByUser(_ context.Context, userID shared.UserID) (*quota.Profile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memQuotaRepo) Create(_ context.Context, p *quota.Profile) error {
	if _, ok := r.profiles[p.UserID]; ok {
		return shared.ErrAlreadyExists
	}
	cp := *p
	r.profiles[p.UserID] = &cp
	return nil
}

func (r *memQuotaRepo) IncrementUsage(_ context.Context, userID shared.UserID, tokens int, incrementMessage bool, now time.Time) (*quota.Profile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	p.Reset(now)
	p.ApplyUsage(tokens, incrementMessage, now)
	cp := *p
	return &cp, nil
}

func (r *memQuotaRepo) ResetIfDue(_ context.Context, userID shared.UserID, now time.Time) (bool, *quota.Profile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return false, nil, shared.ErrProfileNotFound
	}
	reset := p.Reset(now)
	cp := *p
	return reset, &cp, nil
}

func (r *memQuotaRepo) ResetAllDue(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, p := range r.profiles {
		if p.Reset(now) {
			n++
		}
	}
	return n, nil
}

// --- events ---

// capturingPublisher records every published event for assertions.
type capturingPublisher struct {
	events []shared.Event
}

var _ shared.EventPublisher = (*capturingPublisher)(nil)

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) ofType(eventType shared.EventType) []shared.Event {
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}
