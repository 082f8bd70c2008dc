// Package lesson contains the domain entity for one bounded tutoring
// interaction. A lesson accumulates observations during the conversation and
// is closed by fact extraction, which writes its performance summary.
// This is a pure domain layer with zero external dependencies.
package lesson

import (
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// Lesson is a bounded interaction window identified by its session id.
// It owns zero or more observations; observations are immutable after
// creation and only the lesson record itself is ever updated.
type Lesson struct {
	SessionID shared.SessionID
	UserID    shared.UserID // empty until resolved

	StartedAt time.Time

	// PerformanceSummary is the one-line scorecard written at analysis time,
	// e.g. "Grammar: 3/4 (75%) | Vocabulary: 2/3 (67%) | Overall: 71%".
	PerformanceSummary string

	// AnalyzedAt is set exactly once, when fact extraction runs.
	// It is the idempotency marker for re-invoked extractions.
	AnalyzedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a lesson for a session.
func New(sessionID shared.SessionID, userID shared.UserID, startedAt time.Time) (*Lesson, error) {
	if !sessionID.IsValid() {
		return nil, shared.NewDomainError("lesson", "New", shared.ErrInvalidID, "invalid session ID")
	}
	return &Lesson{
		SessionID: sessionID,
		UserID:    userID,
		StartedAt: startedAt,
		CreatedAt: startedAt,
		UpdatedAt: startedAt,
	}, nil
}

// IsAnalyzed reports whether fact extraction has already run for this lesson.
func (l *Lesson) IsAnalyzed() bool {
	return l.AnalyzedAt != nil
}

// MarkAnalyzed closes the lesson with its performance summary.
// A second call is rejected so extraction stays idempotent.
func (l *Lesson) MarkAnalyzed(summary string, at time.Time) error {
	if l.IsAnalyzed() {
		return shared.ErrLessonAlreadyAnalyzed
	}
	l.PerformanceSummary = summary
	l.AnalyzedAt = &at
	l.UpdatedAt = at
	return nil
}

// AttachUser records the resolved user, if not already known.
func (l *Lesson) AttachUser(userID shared.UserID, at time.Time) {
	if l.UserID.IsEmpty() && !userID.IsEmpty() {
		l.UserID = userID
		l.UpdatedAt = at
	}
}
