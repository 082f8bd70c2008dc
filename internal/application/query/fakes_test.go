package query

import (
	"context"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/fact"
	"github.com/daris-app/daris-tutor-core/internal/domain/observation"
	"github.com/daris-app/daris-tutor-core/internal/domain/quota"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// In-memory fakes mirroring the persistence contracts the queries rely on.

type memObservationRepo struct {
	observations []observation.Observation
	listCalls    int
}

var _ observation.Repository = (*memObservationRepo)(nil)

func (r *memObservationRepo) Append(_ context.Context, obs []observation.Observation) (int, error) {
	r.observations = append(r.observations, obs...)
	return len(obs), nil
}

func (r *memObservationRepo) ListBySession(_ context.Context, sessionID shared.SessionID) ([]observation.Observation, error) {
	r.listCalls++
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

type memFactRepo struct {
	facts []*fact.LearnerFact
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

func (r *memFactRepo) MergeCandidate(_ context.Context, candidate *fact.LearnerFact, _ fact.Matcher, _ string, _ time.Time) (*fact.LearnerFact, bool, error) {
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

// memReportCache is an in-process ReportCache.
type memReportCache struct {
	reports map[string]*Report
	sets    int
}

var _ ReportCache = (*memReportCache)(nil)

func newMemReportCache() *memReportCache {
	return &memReportCache{reports: make(map[string]*Report)}
}

func (c *memReportCache) Get(_ context.Context, sessionID string) (*Report, error) {
	r, ok := c.reports[sessionID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return r, nil
}

func (c *memReportCache) Set(_ context.Context, report *Report) error {
	c.sets++
	c.reports[report.SessionID] = report
	return nil
}

func (c *memReportCache) Invalidate(_ context.Context, sessionID string) error {
	delete(c.reports, sessionID)
	return nil
}

// memDecisionCache is an in-process DecisionCache that never stores denials.
type memDecisionCache struct {
	decisions map[string]quota.Decision
	hits      int
}

var _ DecisionCache = (*memDecisionCache)(nil)

func newMemDecisionCache() *memDecisionCache {
	return &memDecisionCache{decisions: make(map[string]quota.Decision)}
}

func (c *memDecisionCache) Get(_ context.Context, userID string) (*quota.Decision, error) {
	d, ok := c.decisions[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	c.hits++
	return &d, nil
}

func (c *memDecisionCache) Set(_ context.Context, userID string, d quota.Decision) error {
	if !d.Allowed {
		return nil
	}
	c.decisions[userID] = d
	return nil
}

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
