package query

import (
	"context"

	"github.com/daris-app/daris-tutor-core/internal/domain/fact"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER FACTS QUERY
// Returns the user's active facts, the working memory the tutoring prompt
// is assembled from.
// ══════════════════════════════════════════════════════════════════════════════

// LearnerFactsQuery identifies the user, optionally narrowed to one type.
type LearnerFactsQuery struct {
	UserID   string
	FactType string // optional: struggle, strength, interest, preference
}

// Validate validates the query.
func (q LearnerFactsQuery) Validate() error {
	if q.UserID == "" {
		return shared.NewDomainError("fact", "List", shared.ErrInvalidID, "user ID is required")
	}
	if q.FactType != "" && !fact.Type(q.FactType).IsValid() {
		return shared.ErrInvalidFactType
	}
	return nil
}

// LearnerFactsHandler handles LearnerFactsQuery.
type LearnerFactsHandler struct {
	facts fact.Repository
}

// NewLearnerFactsHandler creates a LearnerFactsHandler.
func NewLearnerFactsHandler(facts fact.Repository) *LearnerFactsHandler {
	return &LearnerFactsHandler{facts: facts}
}

// Handle returns the active facts, most recently confirmed first as the
// repository orders them.
func (h *LearnerFactsHandler) Handle(ctx context.Context, q LearnerFactsQuery) ([]*fact.LearnerFact, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	userID := shared.UserID(q.UserID)
	if q.FactType != "" {
		return h.facts.GetActiveByUserAndType(ctx, userID, fact.Type(q.FactType))
	}
	return h.facts.GetActiveByUser(ctx, userID)
}
