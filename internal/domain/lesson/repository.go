package lesson

import (
	"context"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// Repository defines the interface for lesson persistence.
// Implementations live in the infrastructure layer.
type Repository interface {
	// Upsert creates the lesson if it does not exist yet, otherwise leaves
	// the existing record intact except for attaching a user id that was
	// previously unknown. Ingest calls this on every turn.
	Upsert(ctx context.Context, l *Lesson) error

	// GetBySession returns the lesson for a session id.
	// Returns shared.ErrLessonNotFound when absent.
	GetBySession(ctx context.Context, sessionID shared.SessionID) (*Lesson, error)

	// MarkAnalyzed persists the performance summary and analysis timestamp.
	// The write is conditional on the lesson not being analyzed yet; a
	// concurrent or repeated analysis reports shared.ErrLessonAlreadyAnalyzed.
	MarkAnalyzed(ctx context.Context, sessionID shared.SessionID, summary string, at time.Time) error

	// ListUsersAnalyzedSince returns the distinct users whose lessons were
	// analyzed after the given instant. The reconciliation sweep uses this
	// to bound its scan to recently-active learners.
	ListUsersAnalyzedSince(ctx context.Context, since time.Time) ([]shared.UserID, error)
}
