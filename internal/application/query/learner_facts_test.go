package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daris-app/daris-tutor-core/internal/domain/fact"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

func seedLearnerFacts(t *testing.T) *memFactRepo {
	t.Helper()
	repo := &memFactRepo{}

	mk := func(factType fact.Type, text string, active bool) {
		f, err := fact.New(shared.UserID(testUser), factType, shared.CategoryGrammar, "", text, nil, "", testNow)
		require.NoError(t, err)
		f.ID = text
		f.IsActive = active
		repo.facts = append(repo.facts, f)
	}
	mk(fact.TypeStruggle, "Struggles with grammatical cases", true)
	mk(fact.TypeStrength, "Shows strength in prepositions", true)
	mk(fact.TypeStruggle, "Struggles with word order", false) // retired
	return repo
}

func TestLearnerFacts_AllActive(t *testing.T) {
	h := NewLearnerFactsHandler(seedLearnerFacts(t))

	facts, err := h.Handle(context.Background(), LearnerFactsQuery{UserID: testUser})
	require.NoError(t, err)

	require.Len(t, facts, 2)
	for _, f := range facts {
		assert.True(t, f.IsActive)
	}
}

func TestLearnerFacts_FilteredByType(t *testing.T) {
	h := NewLearnerFactsHandler(seedLearnerFacts(t))

	facts, err := h.Handle(context.Background(), LearnerFactsQuery{UserID: testUser, FactType: "struggle"})
	require.NoError(t, err)

	require.Len(t, facts, 1)
	assert.Equal(t, "Struggles with grammatical cases", facts[0].FactText)
}

func TestLearnerFacts_Validation(t *testing.T) {
	h := NewLearnerFactsHandler(&memFactRepo{})

	_, err := h.Handle(context.Background(), LearnerFactsQuery{})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), LearnerFactsQuery{UserID: testUser, FactType: "habit"})
	assert.ErrorIs(t, err, shared.ErrInvalidFactType)
}
