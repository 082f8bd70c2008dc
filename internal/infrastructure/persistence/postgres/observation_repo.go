package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/daris-app/daris-tutor-core/internal/domain/observation"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// OBSERVATION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ObservationRepository implements observation.Repository using PostgreSQL.
// Observations are append-only; the seq column preserves creation order.
type ObservationRepository struct {
	conn *Connection
}

var _ observation.Repository = (*ObservationRepository)(nil)

// NewObservationRepository creates a new observation repository.
func NewObservationRepository(conn *Connection) *ObservationRepository {
	return &ObservationRepository{conn: conn}
}

const observationColumns = `
	id, session_id, user_id, kind, word_id, feature,
	student_answer, correct_answer, is_correct, error_type, context, created_at
`

// Append stores a batch of observations in one transaction so a turn's
// evidence lands whole or not at all.
func (r *ObservationRepository) Append(ctx context.Context, observations []observation.Observation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO observations (
			id, session_id, user_id, kind, word_id, feature,
			student_answer, correct_answer, is_correct, error_type, context, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, o := range observations {
			id := o.ID
			if id == "" {
				id = uuid.NewString()
			}
			batch.Queue(query,
				id,
				o.SessionID.String(),
				nullableUserID(o.UserID),
				o.Kind.String(),
				nullableWordID(o.WordID),
				o.Feature,
				o.StudentAnswer,
				o.CorrectAnswer,
				o.IsCorrect,
				o.ErrorType,
				o.Context,
				o.CreatedAt,
			)
		}
		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range observations {
			if _, err := results.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, shared.WrapError("observation", "Append", shared.ErrStoreUnavailable, "failed to append observations", err)
	}
	return len(observations), nil
}

// ListBySession returns every observation for a session in creation order.
func (r *ObservationRepository) ListBySession(ctx context.Context, sessionID shared.SessionID) ([]observation.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE session_id = $1 ORDER BY seq`
	return r.list(ctx, query, sessionID.String())
}

// ListBySessionAndKind returns observations of one kind in creation order.
func (r *ObservationRepository) ListBySessionAndKind(ctx context.Context, sessionID shared.SessionID, kind observation.Kind) ([]observation.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE session_id = $1 AND kind = $2 ORDER BY seq`
	return r.list(ctx, query, sessionID.String(), kind.String())
}

// CountBySession returns the number of stored observations for a session.
func (r *ObservationRepository) CountBySession(ctx context.Context, sessionID shared.SessionID) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM observations WHERE session_id = $1`, sessionID.String()).Scan(&count)
	if err != nil {
		return 0, shared.WrapError("observation", "CountBySession", shared.ErrStoreUnavailable, "failed to count observations", err)
	}
	return count, nil
}

func (r *ObservationRepository) list(ctx context.Context, query string, args ...interface{}) ([]observation.Observation, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.WrapError("observation", "List", shared.ErrStoreUnavailable, "failed to query observations", err)
	}
	defer rows.Close()

	var out []observation.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, shared.WrapError("observation", "List", shared.ErrStoreUnavailable, "failed to scan observation", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanObservation(row pgx.Row) (observation.Observation, error) {
	var (
		o      observation.Observation
		sid    string
		userID *string
		kind   string
		wordID *int
	)
	err := row.Scan(
		&o.ID,
		&sid,
		&userID,
		&kind,
		&wordID,
		&o.Feature,
		&o.StudentAnswer,
		&o.CorrectAnswer,
		&o.IsCorrect,
		&o.ErrorType,
		&o.Context,
		&o.CreatedAt,
	)
	if err != nil {
		return observation.Observation{}, err
	}
	o.SessionID = shared.SessionID(sid)
	o.Kind = observation.Kind(kind)
	if userID != nil {
		o.UserID = shared.UserID(*userID)
	}
	if wordID != nil {
		w := shared.WordID(*wordID)
		o.WordID = &w
	}
	return o, nil
}

// nullableWordID maps an absent word reference to SQL NULL.
func nullableWordID(id *shared.WordID) *int {
	if id == nil {
		return nil
	}
	v := id.Int()
	return &v
}
