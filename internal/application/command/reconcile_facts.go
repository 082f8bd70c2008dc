package command

import (
	"context"

	"github.com/daris-app/daris-tutor-core/internal/domain/fact"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE FACTS COMMAND
// Retires stale struggle facts that a newer, better-evidenced strength in
// the same category has superseded. Facts are deactivated, never deleted.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileFactsCommand identifies the user whose facts to reconcile.
type ReconcileFactsCommand struct {
	UserID string
}

// Validate validates the command.
func (c ReconcileFactsCommand) Validate() error {
	if c.UserID == "" {
		return shared.NewDomainError("fact", "Reconcile", shared.ErrInvalidID, "user ID is required")
	}
	return nil
}

// ReconcileFactsResult reports what reconciliation retired.
type ReconcileFactsResult struct {
	FactsDeactivated int
	DeactivatedIDs   []string
}

// ReconcileFactsHandler handles ReconcileFactsCommand.
type ReconcileFactsHandler struct {
	facts     fact.Repository
	clock     shared.Clock
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewReconcileFactsHandler creates a ReconcileFactsHandler.
func NewReconcileFactsHandler(
	facts fact.Repository,
	clock shared.Clock,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *ReconcileFactsHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &ReconcileFactsHandler{
		facts:     facts,
		clock:     clock,
		publisher: publisher,
		log:       log,
	}
}

// Handle pairs the user's active struggles against active strengths in the
// same category and deactivates every struggle a strength supersedes.
// Deactivation failures on one fact do not stop the rest of the pass.
func (h *ReconcileFactsHandler) Handle(ctx context.Context, cmd ReconcileFactsCommand) (*ReconcileFactsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	userID := shared.UserID(cmd.UserID)
	now := h.clock.Now()

	struggles, err := h.facts.GetActiveByUserAndType(ctx, userID, fact.TypeStruggle)
	if err != nil {
		return nil, err
	}
	if len(struggles) == 0 {
		return &ReconcileFactsResult{}, nil
	}
	strengths, err := h.facts.GetActiveByUserAndType(ctx, userID, fact.TypeStrength)
	if err != nil {
		return nil, err
	}

	result := &ReconcileFactsResult{}
	var firstErr error
	for _, struggle := range struggles {
		winner := supersedingStrength(struggle, strengths)
		if winner == nil {
			continue
		}
		if err := h.facts.Deactivate(ctx, struggle.ID, now); err != nil {
			h.log.Error("failed to deactivate superseded fact",
				logger.UserID(cmd.UserID),
				logger.FactID(struggle.ID),
				logger.Err(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.FactsDeactivated++
		result.DeactivatedIDs = append(result.DeactivatedIDs, struggle.ID)

		if err := h.publisher.Publish(shared.NewFactDeactivatedEvent(
			cmd.UserID, struggle.ID, struggle.Category.String(), winner.ID,
		)); err != nil {
			h.log.Warn("failed to publish fact deactivated event", logger.Err(err))
		}
	}

	if result.FactsDeactivated > 0 {
		h.log.Info("facts reconciled",
			logger.UserID(cmd.UserID),
			logger.Int("deactivated", result.FactsDeactivated),
		)
	}
	return result, firstErr
}

// supersedingStrength returns the strength fact that supersedes the
// struggle, preferring the most recently confirmed one when several do.
func supersedingStrength(struggle *fact.LearnerFact, strengths []*fact.LearnerFact) *fact.LearnerFact {
	var winner *fact.LearnerFact
	for _, s := range strengths {
		if !struggle.SupersededBy(s) {
			continue
		}
		if winner == nil || s.LastConfirmed.After(winner.LastConfirmed) {
			winner = s
		}
	}
	return winner
}
