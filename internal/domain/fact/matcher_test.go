package fact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

func mustFact(t *testing.T, featureKey, text string) *LearnerFact {
	t.Helper()
	f, err := New(testUserID, TypeStruggle, shared.CategoryGrammar, featureKey, text, nil, "",
		time.Date(2026, time.January, 7, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return f
}

func TestSubstringMatcher(t *testing.T) {
	existing := mustFact(t, "", "Struggles with grammatical cases, especially accusative")

	assert.True(t, SubstringMatcher{}.SameFact(existing, mustFact(t, "", "struggles with grammatical cases")))
	assert.False(t, SubstringMatcher{}.SameFact(existing, mustFact(t, "", "Struggles with prepositions")))
}

func TestSubstringMatcher_KnownOverMerge(t *testing.T) {
	// Documented failure mode of the text heuristic: two facts sharing a
	// 30-character prefix merge even when the tail differs.
	existing := mustFact(t, "", "Struggles with verb conjugation in past tense")
	candidate := mustFact(t, "", "Struggles with verb conjugation in future tense")

	assert.True(t, SubstringMatcher{}.SameFact(existing, candidate))
}

func TestFeatureKeyMatcher(t *testing.T) {
	existing := mustFact(t, "grammatical_case", "Struggles with grammatical cases")

	assert.True(t, FeatureKeyMatcher{}.SameFact(existing, mustFact(t, "grammatical_case", "Has trouble with case endings")))
	assert.False(t, FeatureKeyMatcher{}.SameFact(existing, mustFact(t, "word_order", "Struggles with grammatical cases")))

	// A candidate without a key never key-matches.
	assert.False(t, FeatureKeyMatcher{}.SameFact(existing, mustFact(t, "", "Struggles with grammatical cases")))
}

func TestDefaultMatcher_PrefersFeatureKey(t *testing.T) {
	existing := mustFact(t, "grammatical_case", "Struggles with grammatical cases")

	// Same key, completely different text: key wins.
	assert.True(t, DefaultMatcher{}.SameFact(existing, mustFact(t, "grammatical_case", "Case endings are shaky")))

	// Different key, same text: key wins, no merge.
	assert.False(t, DefaultMatcher{}.SameFact(existing, mustFact(t, "word_order", "Struggles with grammatical cases")))
}

func TestDefaultMatcher_FallsBackToSubstring(t *testing.T) {
	existing := mustFact(t, "", "Difficulty remembering: kitab, qalam")

	assert.True(t, DefaultMatcher{}.SameFact(existing, mustFact(t, "", "Difficulty remembering: kitab")))
	assert.False(t, DefaultMatcher{}.SameFact(existing, mustFact(t, "", "Good vocabulary recall")))
}
