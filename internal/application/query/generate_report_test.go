package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daris-app/daris-tutor-core/internal/domain/observation"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

const testSession = "sess-2026-01-07-a"

func grammarObsAt(t *testing.T, feature, student, correct string, isCorrect bool, at time.Time) observation.Observation {
	t.Helper()
	o, err := observation.NewGrammarCheck(shared.SessionID(testSession), 5, feature, student, correct, isCorrect, at)
	require.NoError(t, err)
	return o
}

func grammarObs(t *testing.T, feature, student, correct string, isCorrect bool) observation.Observation {
	t.Helper()
	return grammarObsAt(t, feature, student, correct, isCorrect, testNow)
}

func translationObs(t *testing.T, student, correct string, isCorrect bool) observation.Observation {
	t.Helper()
	o, err := observation.NewTranslationCheck(shared.SessionID(testSession), 7, student, correct, isCorrect, testNow)
	require.NoError(t, err)
	return o
}

func freeformObs(t *testing.T, errorType string) observation.Observation {
	t.Helper()
	o, err := observation.NewFreeformError(shared.SessionID(testSession), errorType, "ana yakteb", "ana aktubu", "past tense drill", testNow)
	require.NoError(t, err)
	return o
}

func newReportHandler(repo *memObservationRepo, cache ReportCache) *GenerateReportHandler {
	return NewGenerateReportHandler(repo, cache, shared.FixedClock{T: testNow}, nil)
}

func TestGenerateReport_EmptySessionYieldsNeutralReport(t *testing.T) {
	h := newReportHandler(&memObservationRepo{}, nil)

	r, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)

	assert.Equal(t, 50, r.Summary.OverallScore)
	assert.Equal(t, 0, r.Summary.TotalInteractions)
	assert.Equal(t, 0, r.Summary.TimeSpentSeconds)
	assert.Empty(t, r.Strengths)
	assert.Empty(t, r.Weaknesses)
	assert.Empty(t, r.Patterns)
	assert.Empty(t, r.Breakthroughs)
	assert.NotEmpty(t, r.Motivation)
}

func TestGenerateReport_ScoreArithmetic(t *testing.T) {
	// One grammar strength (+3*5) and one grammar weakness (-2*5) around
	// the base of 50.
	repo := &memObservationRepo{observations: []observation.Observation{
		grammarObs(t, "grammatical_case", "genitive", "genitive", true),
		grammarObs(t, "word_order", "x", "y", false),
	}}
	h := newReportHandler(repo, nil)

	r, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)

	assert.Equal(t, 55, r.Summary.OverallScore)
	assert.Equal(t, 2, r.Summary.TotalInteractions)

	require.Len(t, r.Strengths, 1)
	assert.Equal(t, SkillSummary{Skill: "grammatical_case", Category: "grammar", Count: 1}, r.Strengths[0])
	require.Len(t, r.Weaknesses, 1)
	assert.Equal(t, SkillSummary{Skill: "word_order", Category: "grammar", Count: 1}, r.Weaknesses[0])
}

func TestGenerateReport_SessionSummaryTimeSpent(t *testing.T) {
	repo := &memObservationRepo{observations: []observation.Observation{
		grammarObsAt(t, "grammatical_case", "genitive", "genitive", true, testNow),
		grammarObsAt(t, "word_order", "a", "b", false, testNow.Add(4*time.Minute)),
		grammarObsAt(t, "preposition", "fi", "ala", true, testNow.Add(10*time.Minute)),
	}}
	h := newReportHandler(repo, nil)

	r, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)

	assert.Equal(t, 600, r.Summary.TimeSpentSeconds)
	assert.Equal(t, 3, r.Summary.TotalInteractions)
}

func TestGenerateReport_BreakthroughUpgradesRepeatedSkill(t *testing.T) {
	// Miss the skill twice, then land it: the correct answer counts as a
	// breakthrough (+5*5), not a plain strength.
	repo := &memObservationRepo{observations: []observation.Observation{
		grammarObs(t, "grammatical_case", "accusative", "genitive", false),
		grammarObs(t, "grammatical_case", "nominative", "genitive", false),
		grammarObs(t, "grammatical_case", "genitive", "genitive", true),
	}}
	h := newReportHandler(repo, nil)

	r, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)

	require.Len(t, r.Breakthroughs, 1)
	assert.Equal(t, "grammatical_case", r.Breakthroughs[0].Skill)
	// 50 - 10 - 10 + 25
	assert.Equal(t, 55, r.Summary.OverallScore)
	// The landed answer is a breakthrough, not a strengths entry.
	assert.Empty(t, r.Strengths)
}

func TestGenerateReport_ImpactFollowsCategoryWeight(t *testing.T) {
	// A grammar weakness carries weight 5, so even the minimum recurring
	// pattern (two misses of one skill) ranks high.
	repo := &memObservationRepo{observations: []observation.Observation{
		grammarObs(t, "word_order", "a", "b", false),
		grammarObs(t, "word_order", "a", "b", false),
	}}
	h := newReportHandler(repo, nil)

	r, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)

	require.Len(t, r.Patterns, 1)
	assert.Equal(t, ImpactHigh, r.Patterns[0].Impact)
	assert.Equal(t, "grammar", r.Patterns[0].Category)

	// The band is a function of the category weight, not the frequency.
	assert.Equal(t, ImpactHigh, impactFor(shared.CategoryGrammar.Weight()))
	assert.Equal(t, ImpactHigh, impactFor(shared.CategoryVocabulary.Weight()))
	assert.Equal(t, ImpactMedium, impactFor(shared.CategoryComprehension.Weight()))
	assert.Equal(t, ImpactMedium, impactFor(shared.CategoryFluency.Weight()))
	assert.Equal(t, ImpactLow, impactFor(1))
}

func TestGenerateReport_PatternsRankedByImpactThenFrequency(t *testing.T) {
	obs := []observation.Observation{
		// word_order missed 4 times (grammar, weight 5 -> high).
		grammarObs(t, "word_order", "a", "b", false),
		grammarObs(t, "word_order", "a", "b", false),
		grammarObs(t, "word_order", "a", "b", false),
		grammarObs(t, "word_order", "a", "b", false),
		// qalam missed 3 times (vocabulary, weight 4 -> high).
		translationObs(t, "galam", "qalam", false),
		translationObs(t, "galam", "qalam", false),
		translationObs(t, "galam", "qalam", false),
		// preposition missed 2 times (grammar, weight 5 -> high).
		grammarObs(t, "preposition", "fi", "ala", false),
		grammarObs(t, "preposition", "fi", "ala", false),
		// grammatical_case missed once -> below the pattern threshold.
		grammarObs(t, "grammatical_case", "a", "b", false),
	}
	repo := &memObservationRepo{observations: obs}
	h := newReportHandler(repo, nil)

	r, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)

	// All three recurring skills sit in the high band, so frequency breaks
	// the tie: 4, then 3, then 2.
	require.Len(t, r.Patterns, 3)
	assert.Equal(t, "word_order", r.Patterns[0].Skill)
	assert.Equal(t, ImpactHigh, r.Patterns[0].Impact)
	assert.Equal(t, 4, r.Patterns[0].Frequency)
	assert.Equal(t, "qalam", r.Patterns[1].Skill)
	assert.Equal(t, "vocabulary", r.Patterns[1].Category)
	assert.Equal(t, "preposition", r.Patterns[2].Skill)

	// Pattern advice first, then the single-miss weakness tops up the list.
	require.Len(t, r.Recommendations, 4)
	assert.Contains(t, r.Recommendations[0], "word by word")
	assert.Contains(t, r.Recommendations[2], "preposition")
	assert.Contains(t, r.Recommendations[3], "case endings")
}

func TestGenerateReport_OneOffWeaknessesStillGetRecommendations(t *testing.T) {
	// No skill recurs, so there are no patterns; the recommendation slots
	// fill from the remaining weaknesses instead of coming back empty.
	repo := &memObservationRepo{observations: []observation.Observation{
		grammarObs(t, "grammatical_case", "a", "b", false),
		grammarObs(t, "word_order", "a", "b", false),
	}}
	h := newReportHandler(repo, nil)

	r, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)

	assert.Empty(t, r.Patterns)
	require.Len(t, r.Recommendations, 2)
	assert.Contains(t, r.Recommendations[0], "case endings")
	assert.Contains(t, r.Recommendations[1], "word by word")
}

func TestGenerateReport_FreeformErrorsCountAsWeaknesses(t *testing.T) {
	repo := &memObservationRepo{observations: []observation.Observation{
		freeformObs(t, "verb_conjugation"),
		freeformObs(t, "verb_conjugation"),
	}}
	h := newReportHandler(repo, nil)

	r, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)

	require.Len(t, r.Patterns, 1)
	assert.Equal(t, "verb_conjugation", r.Patterns[0].Skill)
	// 50 - 2*(2*5)
	assert.Equal(t, 30, r.Summary.OverallScore)
}

func TestGenerateReport_VocabularySkillIsTheTargetWord(t *testing.T) {
	repo := &memObservationRepo{observations: []observation.Observation{
		translationObs(t, "galam", "qalam", false),
		translationObs(t, "galam", "qalam", false),
		translationObs(t, "qalam", "qalam", true),
	}}
	h := newReportHandler(repo, nil)

	r, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)

	require.Len(t, r.Patterns, 1)
	assert.Equal(t, "qalam", r.Patterns[0].Skill)
	require.Len(t, r.Breakthroughs, 1)
	assert.Equal(t, "qalam", r.Breakthroughs[0].Skill)
}

func TestGenerateReport_ScoreClamping(t *testing.T) {
	var losses []observation.Observation
	for i := 0; i < 10; i++ {
		losses = append(losses, grammarObs(t, "word_order", "a", "b", false))
	}
	h := newReportHandler(&memObservationRepo{observations: losses}, nil)

	r, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)
	assert.Equal(t, 0, r.Summary.OverallScore)
}

func TestGenerateReport_MotivationBands(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{95, "Outstanding"},
		{80, "Great work"},
		{65, "Solid progress"},
		{45, "Good effort"},
		{10, "Every lesson counts"},
	}
	for _, tt := range tests {
		assert.Contains(t, motivationFor(tt.score), tt.want, "score %d", tt.score)
	}
}

func TestGenerateReport_CacheRoundTrip(t *testing.T) {
	repo := &memObservationRepo{observations: []observation.Observation{
		grammarObs(t, "grammatical_case", "genitive", "genitive", true),
	}}
	cache := newMemReportCache()
	h := newReportHandler(repo, cache)

	first, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)
	require.Equal(t, 1, cache.sets)
	require.Equal(t, 1, repo.listCalls)

	// Second read is served from the cache.
	second, err := h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.listCalls)

	// Fresh bypasses the read but still refreshes the cache.
	_, err = h.Handle(context.Background(), GenerateReportQuery{SessionID: testSession, Fresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
	assert.Equal(t, 2, cache.sets)
}
