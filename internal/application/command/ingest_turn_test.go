package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daris-app/daris-tutor-core/internal/domain/observation"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

func newIngestHandler(obsRepo *memObservationRepo, lessonRepo *memLessonRepo, pub *capturingPublisher) *IngestTurnHandler {
	return NewIngestTurnHandler(obsRepo, lessonRepo, shared.FixedClock{T: testNow}, pub, nil)
}

func TestIngestTurn_MixedText(t *testing.T) {
	obsRepo := &memObservationRepo{}
	lessonRepo := newMemLessonRepo()
	pub := &capturingPublisher{}
	h := newIngestHandler(obsRepo, lessonRepo, pub)

	res, err := h.Handle(context.Background(), IngestTurnCommand{
		SessionID: testSession,
		UserID:    testUser,
		Text:      "Almost! [GRAM:5|grammatical_case|accusative|genitive|incorrect] Try the next one. [TRANS:7|book|kitab|correct]",
	})
	require.NoError(t, err)

	assert.Equal(t, "Almost! Try the next one. ", res.CleanedText)
	assert.Equal(t, 2, res.ObservationsStored)
	assert.Equal(t, 0, res.FragmentsDropped)

	stored, err := obsRepo.ListBySession(context.Background(), shared.SessionID(testSession))
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, observation.KindGrammarCheck, stored[0].Kind)
	assert.Equal(t, shared.UserID(testUser), stored[0].UserID)
	assert.Equal(t, observation.KindTranslationCheck, stored[1].Kind)

	// The lesson record now exists for later analysis.
	_, err = lessonRepo.GetBySession(context.Background(), shared.SessionID(testSession))
	require.NoError(t, err)

	require.Len(t, pub.ofType(shared.EventLessonIngested), 1)
}

func TestIngestTurn_PlainProseCreatesNothing(t *testing.T) {
	obsRepo := &memObservationRepo{}
	lessonRepo := newMemLessonRepo()
	h := newIngestHandler(obsRepo, lessonRepo, &capturingPublisher{})

	res, err := h.Handle(context.Background(), IngestTurnCommand{
		SessionID: testSession,
		Text:      "Let's talk about your week. How was the market?",
	})
	require.NoError(t, err)

	assert.Equal(t, "Let's talk about your week. How was the market?", res.CleanedText)
	assert.Equal(t, 0, res.ObservationsStored)

	// Pure-prose turns must not force a lesson row into existence.
	_, err = lessonRepo.GetBySession(context.Background(), shared.SessionID(testSession))
	assert.True(t, shared.IsNotFound(err))
}

func TestIngestTurn_MalformedTagStrippedButDropped(t *testing.T) {
	h := newIngestHandler(&memObservationRepo{}, newMemLessonRepo(), &capturingPublisher{})

	res, err := h.Handle(context.Background(), IngestTurnCommand{
		SessionID: testSession,
		Text:      "Good. [GRAM:undefined|grammatical_case|a|b|correct] Continue.",
	})
	require.NoError(t, err)

	// The learner never sees the fragment, even though it stored nothing.
	assert.Equal(t, "Good. Continue.", res.CleanedText)
	assert.Equal(t, 0, res.ObservationsStored)
	assert.Equal(t, 1, res.FragmentsDropped)
}

func TestIngestTurn_StoreFailureSurfaces(t *testing.T) {
	obsRepo := &memObservationRepo{appendErr: errors.New("connection refused")}
	h := newIngestHandler(obsRepo, newMemLessonRepo(), &capturingPublisher{})

	_, err := h.Handle(context.Background(), IngestTurnCommand{
		SessionID: testSession,
		Text:      "[TRANS:7|book|kitab|correct]",
	})
	require.Error(t, err)
	assert.True(t, shared.IsStoreUnavailable(err))
}

func TestIngestTurn_InvalidSession(t *testing.T) {
	h := newIngestHandler(&memObservationRepo{}, newMemLessonRepo(), &capturingPublisher{})

	_, err := h.Handle(context.Background(), IngestTurnCommand{SessionID: "", Text: "hi"})
	assert.True(t, shared.IsValidation(err))
}
