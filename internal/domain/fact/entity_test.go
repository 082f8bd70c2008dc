package fact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

const testUserID = shared.UserID("b7e9a2d4-1c3f-4e5a-9b8c-7d6e5f4a3b2c")

var baseTime = time.Date(2026, time.January, 7, 12, 0, 0, 0, time.UTC)

func newStruggle(t *testing.T, featureKey, text string, examples []string, lessonID string) *LearnerFact {
	t.Helper()
	f, err := New(testUserID, TypeStruggle, shared.CategoryGrammar, featureKey, text, examples, lessonID, baseTime)
	require.NoError(t, err)
	return f
}

func TestNew_Struggle(t *testing.T) {
	f := newStruggle(t, "grammatical_case", "Struggles with grammatical cases", []string{"kitabun", "kitaban"}, "sess-1")

	assert.Equal(t, 1, f.ObservationCount)
	assert.Equal(t, 0, f.SuccessCount)
	assert.True(t, f.IsActive)
	assert.Equal(t, []string{"kitabun", "kitaban"}, f.ArabicExamples)
	assert.Equal(t, []string{"sess-1"}, f.SourceLessonIDs)
}

func TestNew_StrengthStartsWithSuccess(t *testing.T) {
	f, err := New(testUserID, TypeStrength, shared.CategoryVocabulary, "vocabulary_recall", "Good vocabulary recall", nil, "", baseTime)
	require.NoError(t, err)
	assert.Equal(t, 1, f.SuccessCount)
	assert.Empty(t, f.SourceLessonIDs)
}

func TestNew_Rejections(t *testing.T) {
	_, err := New("", TypeStruggle, shared.CategoryGrammar, "", "text", nil, "", baseTime)
	assert.Error(t, err)

	_, err = New(testUserID, Type("habit"), shared.CategoryGrammar, "", "text", nil, "", baseTime)
	assert.ErrorIs(t, err, shared.ErrInvalidFactType)

	_, err = New(testUserID, TypeStruggle, shared.CategoryGrammar, "", "   ", nil, "", baseTime)
	assert.ErrorIs(t, err, shared.ErrFactTextRequired)
}

func TestNew_ExamplesDedupedAndCapped(t *testing.T) {
	examples := []string{"a", "b", "a", " ", "c", "d", "e", "f"}
	f := newStruggle(t, "", "Struggles with prepositions", examples, "")
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, f.ArabicExamples)
}

func TestReinforce(t *testing.T) {
	f := newStruggle(t, "grammatical_case", "Struggles with grammatical cases", []string{"kitabun"}, "sess-1")
	cand := newStruggle(t, "grammatical_case", "Struggles with grammatical cases", []string{"kitaban"}, "")

	later := baseTime.Add(48 * time.Hour)
	assert.True(t, f.Reinforce(cand, "sess-2", later))

	assert.Equal(t, 2, f.ObservationCount)
	assert.Equal(t, later, f.LastConfirmed)
	assert.Equal(t, []string{"kitabun", "kitaban"}, f.ArabicExamples)
	assert.Equal(t, []string{"sess-1", "sess-2"}, f.SourceLessonIDs)
}

func TestReinforce_SameLessonIsNoop(t *testing.T) {
	// A re-run of the same lesson's extraction must not double-count.
	f := newStruggle(t, "grammatical_case", "Struggles with grammatical cases", nil, "sess-1")
	cand := newStruggle(t, "grammatical_case", "Struggles with grammatical cases", nil, "")

	assert.False(t, f.Reinforce(cand, "sess-1", baseTime.Add(time.Hour)))
	assert.Equal(t, 1, f.ObservationCount)
	assert.Equal(t, baseTime, f.LastConfirmed)
}

func TestReinforce_InactiveFactRefuses(t *testing.T) {
	f := newStruggle(t, "grammatical_case", "Struggles with grammatical cases", nil, "sess-1")
	f.Deactivate()

	cand := newStruggle(t, "grammatical_case", "Struggles with grammatical cases", nil, "")
	assert.False(t, f.Reinforce(cand, "sess-2", baseTime.Add(time.Hour)))
}

func TestReinforce_BackfillsFeatureKey(t *testing.T) {
	f := newStruggle(t, "", "Struggles with grammatical cases", nil, "sess-1")
	cand := newStruggle(t, "grammatical_case", "Struggles with grammatical cases", nil, "")

	require.True(t, f.Reinforce(cand, "sess-2", baseTime.Add(time.Hour)))
	assert.Equal(t, "grammatical_case", f.FeatureKey)
}

func TestMergeKey(t *testing.T) {
	f := newStruggle(t, "", "  Struggles With Grammatical Cases In Long Sentences  ", nil, "")
	key := f.MergeKey()
	assert.Equal(t, "struggles with grammatical cas", key)
	assert.LessOrEqual(t, len([]rune(key)), MergeKeyLength)
}

func TestSupersededBy(t *testing.T) {
	struggle := newStruggle(t, "grammatical_case", "Struggles with grammatical cases", nil, "")
	struggle.ObservationCount = 2
	struggle.LastConfirmed = baseTime

	strength, err := New(testUserID, TypeStrength, shared.CategoryGrammar, "grammatical_case", "Shows strength in grammatical cases", nil, "", baseTime.Add(72*time.Hour))
	require.NoError(t, err)
	strength.ObservationCount = 3

	assert.True(t, struggle.SupersededBy(strength))

	// Older strength never supersedes.
	oldStrength := *strength
	oldStrength.LastConfirmed = baseTime.Add(-time.Hour)
	assert.False(t, struggle.SupersededBy(&oldStrength))

	// Thinner evidence never supersedes.
	thinStrength := *strength
	thinStrength.ObservationCount = 1
	assert.False(t, struggle.SupersededBy(&thinStrength))

	// Category mismatch never supersedes.
	vocabStrength := *strength
	vocabStrength.Category = shared.CategoryVocabulary
	assert.False(t, struggle.SupersededBy(&vocabStrength))
}

func TestSupersededBy_TypeDirection(t *testing.T) {
	a := newStruggle(t, "", "Struggles with word order", nil, "")
	b := newStruggle(t, "", "Struggles with prepositions", nil, "")
	b.LastConfirmed = baseTime.Add(time.Hour)
	b.ObservationCount = 5

	// Struggle-vs-struggle is never a supersession pair.
	assert.False(t, a.SupersededBy(b))
}
