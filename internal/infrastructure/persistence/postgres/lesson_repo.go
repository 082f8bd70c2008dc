package postgres

import (
	"context"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/lesson"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LESSON REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LessonRepository implements lesson.Repository using PostgreSQL.
type LessonRepository struct {
	conn *Connection
}

var _ lesson.Repository = (*LessonRepository)(nil)

// NewLessonRepository creates a new lesson repository.
func NewLessonRepository(conn *Connection) *LessonRepository {
	return &LessonRepository{conn: conn}
}

// Upsert creates the lesson if absent. An existing row only ever gains a
// user id it was missing; nothing else is overwritten by ingest.
func (r *LessonRepository) Upsert(ctx context.Context, l *lesson.Lesson) error {
	query := `
		INSERT INTO lessons (session_id, user_id, started_at, performance_summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			user_id = COALESCE(lessons.user_id, EXCLUDED.user_id),
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.conn.Exec(ctx, query,
		l.SessionID.String(),
		nullableUserID(l.UserID),
		l.StartedAt,
		l.PerformanceSummary,
		l.UpdatedAt,
	)
	if err != nil {
		return shared.WrapError("lesson", "Upsert", shared.ErrStoreUnavailable, "failed to upsert lesson", err)
	}
	return nil
}

// GetBySession returns the lesson for a session id.
func (r *LessonRepository) GetBySession(ctx context.Context, sessionID shared.SessionID) (*lesson.Lesson, error) {
	query := `
		SELECT session_id, user_id, started_at, performance_summary, analyzed_at, created_at, updated_at
		FROM lessons
		WHERE session_id = $1
	`
	var (
		l      lesson.Lesson
		sid    string
		userID *string
	)
	err := r.conn.QueryRow(ctx, query, sessionID.String()).Scan(
		&sid,
		&userID,
		&l.StartedAt,
		&l.PerformanceSummary,
		&l.AnalyzedAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLessonNotFound
		}
		return nil, shared.WrapError("lesson", "GetBySession", shared.ErrStoreUnavailable, "failed to get lesson", err)
	}
	l.SessionID = shared.SessionID(sid)
	if userID != nil {
		l.UserID = shared.UserID(*userID)
	}
	return &l, nil
}

// MarkAnalyzed closes the lesson. The WHERE clause makes the write
// conditional: exactly one analysis per lesson wins, even under races.
func (r *LessonRepository) MarkAnalyzed(ctx context.Context, sessionID shared.SessionID, summary string, at time.Time) error {
	query := `
		UPDATE lessons
		SET performance_summary = $2, analyzed_at = $3, updated_at = $3
		WHERE session_id = $1 AND analyzed_at IS NULL
	`
	tag, err := r.conn.Exec(ctx, query, sessionID.String(), summary, at)
	if err != nil {
		return shared.WrapError("lesson", "MarkAnalyzed", shared.ErrStoreUnavailable, "failed to mark lesson analyzed", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the lesson is gone or someone already closed it.
		if _, err := r.GetBySession(ctx, sessionID); err != nil {
			return err
		}
		return shared.ErrLessonAlreadyAnalyzed
	}
	return nil
}

// ListUsersAnalyzedSince returns distinct users with lessons analyzed after
// the given instant.
func (r *LessonRepository) ListUsersAnalyzedSince(ctx context.Context, since time.Time) ([]shared.UserID, error) {
	query := `
		SELECT DISTINCT user_id
		FROM lessons
		WHERE analyzed_at > $1 AND user_id IS NOT NULL
	`
	rows, err := r.conn.Query(ctx, query, since)
	if err != nil {
		return nil, shared.WrapError("lesson", "ListUsersAnalyzedSince", shared.ErrStoreUnavailable, "failed to list users", err)
	}
	defer rows.Close()

	var users []shared.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, shared.WrapError("lesson", "ListUsersAnalyzedSince", shared.ErrStoreUnavailable, "failed to scan user id", err)
		}
		users = append(users, shared.UserID(id))
	}
	return users, rows.Err()
}

// nullableUserID maps an empty user id to SQL NULL.
func nullableUserID(id shared.UserID) *string {
	if id.IsEmpty() {
		return nil
	}
	s := id.String()
	return &s
}
