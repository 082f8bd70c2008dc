// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/lesson"
	"github.com/daris-app/daris-tutor-core/internal/domain/observation"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/internal/protocol"
	"github.com/daris-app/daris-tutor-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// INGEST TURN COMMAND
// Decodes one streamed chunk of teacher-model text, persists the accepted
// observations under the turn's session, and returns the cleaned display
// text. The learner must never see protocol fragments, so the cleaned text
// is returned even when persistence fails.
// ══════════════════════════════════════════════════════════════════════════════

// IngestTurnCommand contains one turn's raw model output.
type IngestTurnCommand struct {
	// SessionID identifies the lesson this turn belongs to.
	SessionID string

	// UserID is the learner, when the transport knows it. May be empty;
	// fact extraction resolves it later.
	UserID string

	// Text is the raw UTF-8 model output, containing zero or more
	// protocol fragments.
	Text string
}

// Validate validates the command.
func (c IngestTurnCommand) Validate() error {
	if _, err := shared.NewSessionID(c.SessionID); err != nil {
		return err
	}
	return nil
}

// IngestTurnResult contains the result of ingesting a turn.
type IngestTurnResult struct {
	// CleanedText is the display text with every protocol tag stripped.
	CleanedText string

	// ObservationsStored is the number of observations durably written.
	ObservationsStored int

	// FragmentsDropped counts malformed tag spans that were stripped but
	// produced no observation.
	FragmentsDropped int
}

// IngestTurnHandler handles IngestTurnCommand.
type IngestTurnHandler struct {
	observations observation.Repository
	lessons      lesson.Repository
	clock        shared.Clock
	publisher    shared.EventPublisher
	log          *logger.Logger
}

// NewIngestTurnHandler creates an IngestTurnHandler.
func NewIngestTurnHandler(
	observations observation.Repository,
	lessons lesson.Repository,
	clock shared.Clock,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *IngestTurnHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &IngestTurnHandler{
		observations: observations,
		lessons:      lessons,
		clock:        clock,
		publisher:    publisher,
		log:          log,
	}
}

// Handle decodes and persists one turn.
// Store failures surface to the caller; a swallowed write would let facts
// and reports silently run on partial evidence.
func (h *IngestTurnHandler) Handle(ctx context.Context, cmd IngestTurnCommand) (*IngestTurnResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	sessionID := shared.SessionID(cmd.SessionID)
	userID := shared.UserID(cmd.UserID)
	now := h.clock.Now()

	frags, cleaned, droppedCount := protocol.Decode(cmd.Text)
	if droppedCount > 0 {
		h.log.Debug("dropped malformed protocol fragments",
			logger.SessionID(cmd.SessionID),
			logger.Int("dropped", droppedCount),
		)
	}

	obs, skipped := fragmentsToObservations(sessionID, userID, frags, now)
	droppedCount += skipped

	result := &IngestTurnResult{
		CleanedText:      cleaned,
		FragmentsDropped: droppedCount,
	}
	if len(obs) == 0 {
		// Nothing decoded: no lesson record is forced into existence for
		// pure-prose turns.
		return result, nil
	}

	l, err := lesson.New(sessionID, userID, now)
	if err != nil {
		return nil, err
	}
	if err := h.lessons.Upsert(ctx, l); err != nil {
		return nil, shared.WrapError("lesson", "Upsert", shared.ErrStoreUnavailable, "failed to upsert lesson", err)
	}

	count, err := h.observations.Append(ctx, obs)
	if err != nil {
		return nil, shared.WrapError("observation", "Append", shared.ErrStoreUnavailable, "failed to append observations", err)
	}
	result.ObservationsStored = count

	if err := h.publisher.Publish(shared.NewLessonIngestedEvent(cmd.SessionID, cmd.UserID, count)); err != nil {
		h.log.Warn("failed to publish lesson ingested event", logger.Err(err))
	}

	h.log.Info("turn ingested",
		logger.SessionID(cmd.SessionID),
		logger.Int("observations", count),
		logger.Int("dropped", droppedCount),
	)
	return result, nil
}

// fragmentsToObservations converts decoded fragments into observation
// entities. Fragments an entity constructor rejects are skipped, mirroring
// the decoder's drop-don't-fail posture.
func fragmentsToObservations(sessionID shared.SessionID, userID shared.UserID, frags []protocol.Fragment, now time.Time) ([]observation.Observation, int) {
	obs := make([]observation.Observation, 0, len(frags))
	skipped := 0
	for _, f := range frags {
		var (
			o   observation.Observation
			err error
		)
		switch f.Kind {
		case protocol.KindGrammar:
			o, err = observation.NewGrammarCheck(sessionID, shared.WordID(f.WordID), f.Feature, f.StudentAnswer, f.CorrectAnswer, f.IsCorrect, now)
		case protocol.KindTranslation:
			o, err = observation.NewTranslationCheck(sessionID, shared.WordID(f.WordID), f.StudentAnswer, f.CorrectAnswer, f.IsCorrect, now)
		case protocol.KindErrorLog:
			o, err = observation.NewFreeformError(sessionID, f.ErrorType, f.StudentAnswer, f.CorrectAnswer, f.Context, now)
		default:
			skipped++
			continue
		}
		if err != nil {
			skipped++
			continue
		}
		if !userID.IsEmpty() {
			o = o.WithUser(userID)
		}
		obs = append(obs, o)
	}
	return obs, skipped
}
