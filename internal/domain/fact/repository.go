package fact

import (
	"context"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// Repository defines the interface for learner-fact persistence.
// Implementations live in the infrastructure layer.
type Repository interface {
	// GetActiveByUser returns every active fact for a user.
	GetActiveByUser(ctx context.Context, userID shared.UserID) ([]*LearnerFact, error)

	// GetActiveByUserAndType returns active facts of one type for a user.
	GetActiveByUserAndType(ctx context.Context, userID shared.UserID, factType Type) ([]*LearnerFact, error)

	// MergeCandidate runs the find-existing-or-create step atomically for
	// one candidate: existing active facts for the candidate's
	// (user, type, category) are locked, matched with m, and either
	// reinforced in place or the candidate is inserted fresh.
	//
	// The per-user lock closes the check-then-act race between concurrent
	// lessons. Returns whether a new fact was created and the stored fact.
	MergeCandidate(ctx context.Context, candidate *LearnerFact, m Matcher, sourceLessonID string, at time.Time) (*LearnerFact, bool, error)

	// Deactivate retires a fact. Facts are never deleted.
	Deactivate(ctx context.Context, factID string, at time.Time) error
}
