package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daris-app/daris-tutor-core/internal/domain/fact"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

func seedFact(t *testing.T, repo *memFactRepo, factType fact.Type, category shared.Category, text string, observations int, lastConfirmed time.Time) *fact.LearnerFact {
	t.Helper()
	f, err := fact.New(shared.UserID(testUser), factType, category, "", text, nil, "", lastConfirmed)
	require.NoError(t, err)
	f.ObservationCount = observations
	f.LastConfirmed = lastConfirmed

	repo.nextID++
	f.ID = text
	repo.facts = append(repo.facts, f)
	return f
}

func TestReconcileFacts_RetiresSupersededStruggle(t *testing.T) {
	repo := &memFactRepo{}
	struggle := seedFact(t, repo, fact.TypeStruggle, shared.CategoryGrammar, "Struggles with grammatical cases", 2, testNow)
	seedFact(t, repo, fact.TypeStrength, shared.CategoryGrammar, "Shows strength in grammatical cases", 3, testNow.Add(72*time.Hour))
	// Different category: untouched by the grammar strength.
	vocabStruggle := seedFact(t, repo, fact.TypeStruggle, shared.CategoryVocabulary, "Struggles with vocabulary recall", 2, testNow)

	pub := &capturingPublisher{}
	h := NewReconcileFactsHandler(repo, shared.FixedClock{T: testNow.Add(96 * time.Hour)}, pub, nil)

	result, err := h.Handle(context.Background(), ReconcileFactsCommand{UserID: testUser})
	require.NoError(t, err)

	assert.Equal(t, 1, result.FactsDeactivated)
	assert.Equal(t, []string{struggle.ID}, result.DeactivatedIDs)
	assert.False(t, struggle.IsActive)
	assert.True(t, vocabStruggle.IsActive)

	events := pub.ofType(shared.EventFactDeactivated)
	require.Len(t, events, 1)
	deactivated := events[0].(shared.FactDeactivatedEvent)
	assert.Equal(t, struggle.ID, deactivated.FactID)
	assert.Equal(t, "Shows strength in grammatical cases", deactivated.SupersededBy)
}

func TestReconcileFacts_WeakerStrengthLeavesStruggle(t *testing.T) {
	repo := &memFactRepo{}
	struggle := seedFact(t, repo, fact.TypeStruggle, shared.CategoryGrammar, "Struggles with grammatical cases", 5, testNow)
	// Newer but with thinner evidence.
	seedFact(t, repo, fact.TypeStrength, shared.CategoryGrammar, "Shows strength in grammatical cases", 2, testNow.Add(time.Hour))

	h := NewReconcileFactsHandler(repo, shared.FixedClock{T: testNow.Add(2 * time.Hour)}, nil, nil)
	result, err := h.Handle(context.Background(), ReconcileFactsCommand{UserID: testUser})
	require.NoError(t, err)

	assert.Equal(t, 0, result.FactsDeactivated)
	assert.True(t, struggle.IsActive)
}

func TestReconcileFacts_NoStrugglesIsNoop(t *testing.T) {
	repo := &memFactRepo{}
	seedFact(t, repo, fact.TypeStrength, shared.CategoryGrammar, "Shows strength in grammatical cases", 3, testNow)

	h := NewReconcileFactsHandler(repo, shared.FixedClock{T: testNow}, nil, nil)
	result, err := h.Handle(context.Background(), ReconcileFactsCommand{UserID: testUser})
	require.NoError(t, err)
	assert.Equal(t, 0, result.FactsDeactivated)
}

func TestReconcileFacts_Idempotent(t *testing.T) {
	repo := &memFactRepo{}
	seedFact(t, repo, fact.TypeStruggle, shared.CategoryGrammar, "Struggles with grammatical cases", 2, testNow)
	seedFact(t, repo, fact.TypeStrength, shared.CategoryGrammar, "Shows strength in grammatical cases", 3, testNow.Add(72*time.Hour))

	h := NewReconcileFactsHandler(repo, shared.FixedClock{T: testNow.Add(96 * time.Hour)}, nil, nil)

	first, err := h.Handle(context.Background(), ReconcileFactsCommand{UserID: testUser})
	require.NoError(t, err)
	require.Equal(t, 1, first.FactsDeactivated)

	// The struggle is inactive now, so a second pass finds nothing.
	second, err := h.Handle(context.Background(), ReconcileFactsCommand{UserID: testUser})
	require.NoError(t, err)
	assert.Equal(t, 0, second.FactsDeactivated)
}

func TestReconcileFacts_MissingUserID(t *testing.T) {
	h := NewReconcileFactsHandler(&memFactRepo{}, shared.FixedClock{T: testNow}, nil, nil)
	_, err := h.Handle(context.Background(), ReconcileFactsCommand{})
	assert.True(t, shared.IsValidation(err))
}
