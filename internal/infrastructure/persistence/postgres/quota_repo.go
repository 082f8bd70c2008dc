package postgres

import (
	"context"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/quota"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUOTA REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// QuotaRepository implements quota.Repository using PostgreSQL.
// Every usage write is one conditional UPDATE that folds the lazy window
// reset and the increment together, so racing turns can never lose counts
// to a read-modify-write interleaving.
type QuotaRepository struct {
	conn *Connection
}

var _ quota.Repository = (*QuotaRepository)(nil)

// NewQuotaRepository creates a new quota repository.
func NewQuotaRepository(conn *Connection) *QuotaRepository {
	return &QuotaRepository{conn: conn}
}

const profileColumns = `user_id, tier, messages_used, tokens_used, reset_at, created_at, updated_at`

// GetByUser returns the profile for a user.
func (r *QuotaRepository) GetByUser(ctx context.Context, userID shared.UserID) (*quota.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM quota_profiles WHERE user_id = $1`
	p, err := scanProfile(r.conn.QueryRow(ctx, query, userID.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, shared.WrapError("quota", "GetByUser", shared.ErrStoreUnavailable, "failed to get profile", err)
	}
	return p, nil
}

// Create inserts a fresh profile. Racing creates surface the unique
// violation to the caller, which re-reads the winner's row.
func (r *QuotaRepository) Create(ctx context.Context, p *quota.Profile) error {
	query := `
		INSERT INTO quota_profiles (user_id, tier, messages_used, tokens_used, reset_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.conn.Exec(ctx, query,
		p.UserID.String(),
		p.Tier.String(),
		p.MessagesUsed,
		p.TokensUsed,
		p.ResetAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("quota", "Create", shared.ErrConcurrentModification, "profile already exists", err)
		}
		return shared.WrapError("quota", "Create", shared.ErrStoreUnavailable, "failed to create profile", err)
	}
	return nil
}

// IncrementUsage applies one turn's usage in a single statement: counters
// zero first when the window has rolled, the boundary advances, then the
// increment lands on the fresh counters.
func (r *QuotaRepository) IncrementUsage(ctx context.Context, userID shared.UserID, tokens int, incrementMessage bool, now time.Time) (*quota.Profile, error) {
	query := `
		UPDATE quota_profiles
		SET
			messages_used = (CASE WHEN reset_at <= $2 THEN 0 ELSE messages_used END)
				+ (CASE WHEN $4 THEN 1 ELSE 0 END),
			tokens_used = (CASE WHEN reset_at <= $2 THEN 0 ELSE tokens_used END)
				+ GREATEST($3::bigint, 0),
			reset_at = CASE WHEN reset_at <= $2 THEN $5 ELSE reset_at END,
			updated_at = $2
		WHERE user_id = $1
		RETURNING ` + profileColumns
	p, err := scanProfile(r.conn.QueryRow(ctx, query,
		userID.String(),
		now,
		tokens,
		incrementMessage,
		timeutil.NextSunday(now),
	))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, shared.WrapError("quota", "IncrementUsage", shared.ErrStoreUnavailable, "failed to increment usage", err)
	}
	return p, nil
}

// ResetIfDue rolls one profile's window over if it has expired at now.
// The reset_at guard makes it idempotent: the second caller in a rolled
// window matches zero rows and just reads the profile back.
func (r *QuotaRepository) ResetIfDue(ctx context.Context, userID shared.UserID, now time.Time) (bool, *quota.Profile, error) {
	query := `
		UPDATE quota_profiles
		SET messages_used = 0, tokens_used = 0, reset_at = $3, updated_at = $2
		WHERE user_id = $1 AND reset_at <= $2
		RETURNING ` + profileColumns
	p, err := scanProfile(r.conn.QueryRow(ctx, query, userID.String(), now, timeutil.NextSunday(now)))
	if err == nil {
		return true, p, nil
	}
	if !IsNoRows(err) {
		return false, nil, shared.WrapError("quota", "ResetIfDue", shared.ErrStoreUnavailable, "failed to reset profile", err)
	}
	p, err = r.GetByUser(ctx, userID)
	if err != nil {
		return false, nil, err
	}
	return false, p, nil
}

// ResetAllDue is the weekly sweep: every expired window rolls to the same
// next Sunday boundary.
func (r *QuotaRepository) ResetAllDue(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE quota_profiles
		SET messages_used = 0, tokens_used = 0, reset_at = $2, updated_at = $1
		WHERE reset_at <= $1
	`
	tag, err := r.conn.Exec(ctx, query, now, timeutil.NextSunday(now))
	if err != nil {
		return 0, shared.WrapError("quota", "ResetAllDue", shared.ErrStoreUnavailable, "failed to sweep profiles", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanProfile(row interface{ Scan(dest ...interface{}) error }) (*quota.Profile, error) {
	var (
		p      quota.Profile
		userID string
		tier   string
	)
	err := row.Scan(
		&userID,
		&tier,
		&p.MessagesUsed,
		&p.TokensUsed,
		&p.ResetAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.UserID = shared.UserID(userID)
	p.Tier = quota.Tier(tier)
	return &p, nil
}
