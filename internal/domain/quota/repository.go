package quota

import (
	"context"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// Repository defines the interface for quota-profile persistence.
// Implementations live in the infrastructure layer.
//
// Contract notes for implementers: IncrementUsage must be a single atomic
// store operation (conditional reset plus counter increment), never a
// read-modify-write in two round trips, or concurrent turns from the same
// user under-count usage.
type Repository interface {
	// GetByUser returns the profile for a user.
	// Returns shared.ErrProfileNotFound when absent.
	GetByUser(ctx context.Context, userID shared.UserID) (*Profile, error)

	// Create inserts a fresh profile.
	Create(ctx context.Context, p *Profile) error

	// IncrementUsage atomically applies one turn's usage: if the window has
	// rolled over at now, it is reset first (counters zeroed, boundary
	// advanced), then the counters increment. Returns the post-increment
	// profile.
	IncrementUsage(ctx context.Context, userID shared.UserID, tokens int, incrementMessage bool, now time.Time) (*Profile, error)

	// ResetIfDue applies a lazy reset when the window has expired at now.
	// Idempotent once the window has rolled: a second call in the same
	// window is a no-op. Reports whether a reset was applied.
	ResetIfDue(ctx context.Context, userID shared.UserID, now time.Time) (bool, *Profile, error)

	// ResetAllDue resets every profile whose window has expired at now and
	// returns the number of profiles reset. The weekly sweep entry point.
	ResetAllDue(ctx context.Context, now time.Time) (int, error)
}
