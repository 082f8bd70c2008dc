package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/daris-app/daris-tutor-core/internal/domain/fact"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FACT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// FactRepository implements fact.Repository using PostgreSQL.
// MergeCandidate serializes per user with a transaction-scoped advisory
// lock: the find-or-create step must never run twice concurrently for the
// same learner or both writers insert.
type FactRepository struct {
	conn *Connection
}

var _ fact.Repository = (*FactRepository)(nil)

// NewFactRepository creates a new fact repository.
func NewFactRepository(conn *Connection) *FactRepository {
	return &FactRepository{conn: conn}
}

const factColumns = `
	id, user_id, fact_type, fact_text, category, feature_key,
	arabic_examples, observation_count, success_count,
	first_observed, last_confirmed, is_active, source_lesson_ids
`

// GetActiveByUser returns every active fact, most recently confirmed first.
func (r *FactRepository) GetActiveByUser(ctx context.Context, userID shared.UserID) ([]*fact.LearnerFact, error) {
	query := `SELECT ` + factColumns + `
		FROM learner_facts
		WHERE user_id = $1 AND is_active
		ORDER BY last_confirmed DESC`
	return r.list(ctx, r.conn, query, userID.String())
}

// GetActiveByUserAndType returns active facts of one type.
func (r *FactRepository) GetActiveByUserAndType(ctx context.Context, userID shared.UserID, factType fact.Type) ([]*fact.LearnerFact, error) {
	query := `SELECT ` + factColumns + `
		FROM learner_facts
		WHERE user_id = $1 AND fact_type = $2 AND is_active
		ORDER BY last_confirmed DESC`
	return r.list(ctx, r.conn, query, userID.String(), factType.String())
}

// MergeCandidate reinforces the matching active fact or inserts the
// candidate, atomically per user.
func (r *FactRepository) MergeCandidate(ctx context.Context, candidate *fact.LearnerFact, m fact.Matcher, sourceLessonID string, at time.Time) (*fact.LearnerFact, bool, error) {
	var (
		stored  *fact.LearnerFact
		created bool
	)
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		// One merge at a time per user. hashtext gives a stable 32-bit key
		// for the advisory lock; collisions only cost extra serialization.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, candidate.UserID.String()); err != nil {
			return err
		}

		query := `SELECT ` + factColumns + `
			FROM learner_facts
			WHERE user_id = $1 AND fact_type = $2 AND category = $3 AND is_active
			ORDER BY last_confirmed DESC`
		existing, err := r.list(ctx, tx, query, candidate.UserID.String(), candidate.FactType.String(), candidate.Category.String())
		if err != nil {
			return err
		}

		for _, f := range existing {
			if !m.SameFact(f, candidate) {
				continue
			}
			stored = f
			if !f.Reinforce(candidate, sourceLessonID, at) {
				// Lesson already contributed: idempotent no-op.
				return nil
			}
			return r.update(ctx, tx, f)
		}

		candidate.ID = uuid.NewString()
		if sourceLessonID != "" && !candidate.HasSourceLesson(sourceLessonID) {
			candidate.SourceLessonIDs = append(candidate.SourceLessonIDs, sourceLessonID)
		}
		stored = candidate
		created = true
		return r.insert(ctx, tx, candidate)
	})
	if err != nil {
		return nil, false, shared.WrapError("fact", "MergeCandidate", shared.ErrStoreUnavailable, "failed to merge fact", err)
	}
	return stored, created, nil
}

// Deactivate retires a fact. Retiring an already-inactive fact is a no-op.
func (r *FactRepository) Deactivate(ctx context.Context, factID string, at time.Time) error {
	query := `
		UPDATE learner_facts
		SET is_active = FALSE, deactivated_at = $2
		WHERE id = $1 AND is_active
	`
	tag, err := r.conn.Exec(ctx, query, factID, at)
	if err != nil {
		return shared.WrapError("fact", "Deactivate", shared.ErrStoreUnavailable, "failed to deactivate fact", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM learner_facts WHERE id = $1)`, factID).Scan(&exists); err != nil {
			return shared.WrapError("fact", "Deactivate", shared.ErrStoreUnavailable, "failed to check fact", err)
		}
		if !exists {
			return shared.ErrFactNotFound
		}
	}
	return nil
}

func (r *FactRepository) insert(ctx context.Context, q Querier, f *fact.LearnerFact) error {
	examples, err := json.Marshal(emptyNotNull(f.ArabicExamples))
	if err != nil {
		return err
	}
	sources, err := json.Marshal(emptyNotNull(f.SourceLessonIDs))
	if err != nil {
		return err
	}
	query := `
		INSERT INTO learner_facts (
			id, user_id, fact_type, fact_text, category, feature_key,
			arabic_examples, observation_count, success_count,
			first_observed, last_confirmed, is_active, source_lesson_ids
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = q.Exec(ctx, query,
		f.ID,
		f.UserID.String(),
		f.FactType.String(),
		f.FactText,
		f.Category.String(),
		f.FeatureKey,
		examples,
		f.ObservationCount,
		f.SuccessCount,
		f.FirstObserved,
		f.LastConfirmed,
		f.IsActive,
		sources,
	)
	return err
}

func (r *FactRepository) update(ctx context.Context, q Querier, f *fact.LearnerFact) error {
	examples, err := json.Marshal(emptyNotNull(f.ArabicExamples))
	if err != nil {
		return err
	}
	sources, err := json.Marshal(emptyNotNull(f.SourceLessonIDs))
	if err != nil {
		return err
	}
	query := `
		UPDATE learner_facts
		SET fact_text = $2, feature_key = $3, arabic_examples = $4,
			observation_count = $5, success_count = $6,
			last_confirmed = $7, source_lesson_ids = $8
		WHERE id = $1
	`
	_, err = q.Exec(ctx, query,
		f.ID,
		f.FactText,
		f.FeatureKey,
		examples,
		f.ObservationCount,
		f.SuccessCount,
		f.LastConfirmed,
		sources,
	)
	return err
}

func (r *FactRepository) list(ctx context.Context, q Querier, query string, args ...interface{}) ([]*fact.LearnerFact, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*fact.LearnerFact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFact(row pgx.Row) (*fact.LearnerFact, error) {
	var (
		f        fact.LearnerFact
		userID   string
		factType string
		category string
		examples []byte
		sources  []byte
	)
	err := row.Scan(
		&f.ID,
		&userID,
		&factType,
		&f.FactText,
		&category,
		&f.FeatureKey,
		&examples,
		&f.ObservationCount,
		&f.SuccessCount,
		&f.FirstObserved,
		&f.LastConfirmed,
		&f.IsActive,
		&sources,
	)
	if err != nil {
		return nil, err
	}
	f.UserID = shared.UserID(userID)
	f.FactType = fact.Type(factType)
	f.Category = shared.Category(category)
	if err := json.Unmarshal(examples, &f.ArabicExamples); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sources, &f.SourceLessonIDs); err != nil {
		return nil, err
	}
	return &f, nil
}

// emptyNotNull keeps JSONB columns as [] instead of null.
func emptyNotNull(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
