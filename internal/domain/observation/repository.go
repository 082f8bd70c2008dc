package observation

import (
	"context"

	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// Repository defines the interface for observation persistence.
// Observations are append-only: there is no update or delete path.
// Implementations live in the infrastructure layer.
type Repository interface {
	// Append durably stores a batch of observations for their sessions and
	// returns the number written. An empty batch is a no-op success.
	// Transient failures surface as shared.ErrStoreUnavailable.
	Append(ctx context.Context, observations []Observation) (int, error)

	// ListBySession returns every observation for a session in creation
	// order. Creation order is load-bearing: confusion-pair counting and
	// report generation are deterministic only under it.
	ListBySession(ctx context.Context, sessionID shared.SessionID) ([]Observation, error)

	// ListBySessionAndKind returns observations of one kind for a session,
	// in creation order.
	ListBySessionAndKind(ctx context.Context, sessionID shared.SessionID, kind Kind) ([]Observation, error)

	// CountBySession returns the number of observations stored for a session.
	CountBySession(ctx context.Context, sessionID shared.SessionID) (int, error)
}
