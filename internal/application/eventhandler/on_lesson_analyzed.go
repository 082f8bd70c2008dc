// Package eventhandler contains subscribers that react to domain events.
package eventhandler

import (
	"context"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/application/command"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/pkg/logger"
	"github.com/daris-app/daris-tutor-core/pkg/retry"
)

// reconcileTimeout bounds the reconciliation run kicked off per event.
const reconcileTimeout = 10 * time.Second

// LessonAnalyzedHandler reconciles a user's facts whenever a lesson of
// theirs finishes analysis. Reconciliation rides the event rather than the
// extraction call so a slow pass never delays the lesson-end response.
type LessonAnalyzedHandler struct {
	reconcile *command.ReconcileFactsHandler
	retrier   *retry.Retrier
	log       *logger.Logger
}

// NewLessonAnalyzedHandler creates a LessonAnalyzedHandler.
func NewLessonAnalyzedHandler(reconcile *command.ReconcileFactsHandler, log *logger.Logger) *LessonAnalyzedHandler {
	if log == nil {
		log = logger.Default()
	}
	// Transient store failures are retried; nothing re-delivers the event.
	retrier := retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(100*time.Millisecond),
		retry.WithMaxDelay(2*time.Second),
		retry.WithRetryIf(shared.IsRetryable),
	)
	return &LessonAnalyzedHandler{reconcile: reconcile, retrier: retrier, log: log}
}

// Register subscribes the handler on the bus.
func (h *LessonAnalyzedHandler) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventLessonAnalyzed, h.Handle)
}

// Handle runs reconciliation for the analyzed lesson's user.
func (h *LessonAnalyzedHandler) Handle(event shared.Event) error {
	analyzed, ok := event.(shared.LessonAnalyzedEvent)
	if !ok {
		return nil
	}
	if analyzed.UserID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	var result *command.ReconcileFactsResult
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		var handleErr error
		result, handleErr = h.reconcile.Handle(ctx, command.ReconcileFactsCommand{UserID: analyzed.UserID})
		return handleErr
	})
	if err != nil {
		h.log.Error("reconciliation after lesson analysis failed",
			logger.UserID(analyzed.UserID),
			logger.SessionID(analyzed.SessionID),
			logger.Err(err),
		)
		return err
	}
	if result != nil && result.FactsDeactivated > 0 {
		h.log.Info("reconciliation retired superseded struggles",
			logger.UserID(analyzed.UserID),
			logger.Int("deactivated", result.FactsDeactivated),
		)
	}
	return nil
}
