package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/fact"
	"github.com/daris-app/daris-tutor-core/internal/domain/lesson"
	"github.com/daris-app/daris-tutor-core/internal/domain/observation"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXTRACT FACTS COMMAND
// Runs at lesson end: turns the session's raw observations into durable
// learner facts (create-or-reinforce with reconciliation downstream) and
// writes the lesson's one-line performance summary.
// ══════════════════════════════════════════════════════════════════════════════

// Policy holds the tunable emission thresholds for fact extraction.
// The reference behavior is a low bar - any incorrect observation yields a
// struggle, any correct one a strength - which is a policy choice, not a law.
type Policy struct {
	// StruggleMinIncorrect is the minimum incorrect count per feature
	// before a struggle fact is emitted.
	StruggleMinIncorrect int

	// StrengthMinCorrect is the minimum correct count per feature before a
	// strength fact is emitted.
	StrengthMinCorrect int

	// ConfusionMinCount is the minimum occurrences of one
	// (student answer, correct answer) pair before a confusion fact is
	// emitted.
	ConfusionMinCount int

	// TopMissedLimit caps how many missed answers the vocabulary struggle
	// fact names.
	TopMissedLimit int
}

// DefaultPolicy returns the reference thresholds.
func DefaultPolicy() Policy {
	return Policy{
		StruggleMinIncorrect: 1,
		StrengthMinCorrect:   1,
		ConfusionMinCount:    2,
		TopMissedLimit:       3,
	}
}

// ExtractFactsCommand identifies the lesson to analyze.
type ExtractFactsCommand struct {
	// SessionID is the lesson to analyze.
	SessionID string

	// UserID is optional; when empty it is resolved from the lesson
	// record, then from the session's observations.
	UserID string
}

// Validate validates the command.
func (c ExtractFactsCommand) Validate() error {
	if _, err := shared.NewSessionID(c.SessionID); err != nil {
		return err
	}
	return nil
}

// LessonAnalysis is the result of analyzing one lesson.
type LessonAnalysis struct {
	SessionID          string
	UserID             string
	PerformanceSummary string
	FactsCreated       int
	FactsUpdated       int
	Facts              []*fact.LearnerFact

	// AlreadyAnalyzed is true when this call was an idempotent re-run and
	// contributed no new evidence.
	AlreadyAnalyzed bool
}

// ExtractFactsHandler handles ExtractFactsCommand.
type ExtractFactsHandler struct {
	observations observation.Repository
	lessons      lesson.Repository
	facts        fact.Repository
	matcher      fact.Matcher
	policy       Policy
	clock        shared.Clock
	publisher    shared.EventPublisher
	log          *logger.Logger
}

// NewExtractFactsHandler creates an ExtractFactsHandler.
func NewExtractFactsHandler(
	observations observation.Repository,
	lessons lesson.Repository,
	facts fact.Repository,
	matcher fact.Matcher,
	policy Policy,
	clock shared.Clock,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *ExtractFactsHandler {
	if matcher == nil {
		matcher = fact.DefaultMatcher{}
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &ExtractFactsHandler{
		observations: observations,
		lessons:      lessons,
		facts:        facts,
		matcher:      matcher,
		policy:       policy,
		clock:        clock,
		publisher:    publisher,
		log:          log,
	}
}

// Handle analyzes one completed lesson. Re-invoking for an
// already-analyzed session is a no-op that returns the stored summary;
// fact counters are additionally guarded per source lesson, so even a
// racing double-run cannot double-count a session's evidence.
func (h *ExtractFactsHandler) Handle(ctx context.Context, cmd ExtractFactsCommand) (*LessonAnalysis, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	sessionID := shared.SessionID(cmd.SessionID)
	now := h.clock.Now()

	existing, err := h.lessons.GetBySession(ctx, sessionID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}
	if existing != nil && existing.IsAnalyzed() {
		return &LessonAnalysis{
			SessionID:          cmd.SessionID,
			UserID:             existing.UserID.String(),
			PerformanceSummary: existing.PerformanceSummary,
			AlreadyAnalyzed:    true,
		}, nil
	}

	obs, err := h.observations.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	userID, err := h.resolveUser(cmd, existing, obs)
	if err != nil {
		return nil, err
	}

	candidates := h.buildCandidates(userID, obs, now)

	analysis := &LessonAnalysis{
		SessionID: cmd.SessionID,
		UserID:    userID.String(),
	}
	for _, cand := range candidates {
		stored, created, err := h.facts.MergeCandidate(ctx, cand, h.matcher, cmd.SessionID, now)
		if err != nil {
			return nil, err
		}
		if created {
			analysis.FactsCreated++
		} else {
			analysis.FactsUpdated++
		}
		analysis.Facts = append(analysis.Facts, stored)
	}

	analysis.PerformanceSummary = performanceSummary(obs)

	l, err := lesson.New(sessionID, userID, now)
	if err != nil {
		return nil, err
	}
	if err := h.lessons.Upsert(ctx, l); err != nil {
		return nil, err
	}
	if err := h.lessons.MarkAnalyzed(ctx, sessionID, analysis.PerformanceSummary, now); err != nil {
		// A concurrent analysis won the close; our fact merges were
		// already guarded per lesson, so report the idempotent outcome.
		if shared.IsNotFound(err) {
			return nil, err
		}
		analysis.AlreadyAnalyzed = true
	}

	if err := h.publisher.Publish(shared.NewLessonAnalyzedEvent(
		cmd.SessionID, userID.String(), analysis.FactsCreated, analysis.FactsUpdated, analysis.PerformanceSummary,
	)); err != nil {
		h.log.Warn("failed to publish lesson analyzed event", logger.Err(err))
	}

	h.log.Info("lesson analyzed",
		logger.SessionID(cmd.SessionID),
		logger.UserID(userID.String()),
		logger.Int("facts_created", analysis.FactsCreated),
		logger.Int("facts_updated", analysis.FactsUpdated),
	)
	return analysis, nil
}

// resolveUser determines the lesson's learner: the command, the lesson
// record, then the session's observations (grammar first, then
// translation). No resolvable user means nothing to attach facts to.
func (h *ExtractFactsHandler) resolveUser(cmd ExtractFactsCommand, l *lesson.Lesson, obs []observation.Observation) (shared.UserID, error) {
	if cmd.UserID != "" {
		return shared.UserID(cmd.UserID), nil
	}
	if l != nil && !l.UserID.IsEmpty() {
		return l.UserID, nil
	}
	for _, kind := range []observation.Kind{observation.KindGrammarCheck, observation.KindTranslationCheck} {
		for _, o := range obs {
			if o.Kind == kind && !o.UserID.IsEmpty() {
				return o.UserID, nil
			}
		}
	}
	return "", shared.ErrUserUnresolvable
}

// featureStats accumulates per-feature grammar tallies in first-seen order.
type featureStats struct {
	feature   string
	correct   int
	incorrect int
	missedAr  []string // correct answers the student missed
	rightAr   []string // correct answers the student produced
}

// buildCandidates derives candidate facts from the session's observations.
func (h *ExtractFactsHandler) buildCandidates(userID shared.UserID, obs []observation.Observation, now time.Time) []*fact.LearnerFact {
	var candidates []*fact.LearnerFact
	candidates = append(candidates, h.grammarCandidates(userID, obs, now)...)
	candidates = append(candidates, h.vocabularyCandidates(userID, obs, now)...)
	return candidates
}

// grammarCandidates implements the grammar analysis: per-feature
// struggle/strength facts plus repeated-confusion facts.
func (h *ExtractFactsHandler) grammarCandidates(userID shared.UserID, obs []observation.Observation, now time.Time) []*fact.LearnerFact {
	var (
		order []string
		stats = make(map[string]*featureStats)
	)
	type pair struct{ student, correct string }
	var (
		pairOrder []pair
		pairCount = make(map[pair]int)
	)

	for _, o := range obs {
		if o.Kind != observation.KindGrammarCheck {
			continue
		}
		st, ok := stats[o.Feature]
		if !ok {
			st = &featureStats{feature: o.Feature}
			stats[o.Feature] = st
			order = append(order, o.Feature)
		}
		if o.IsCorrect {
			st.correct++
			st.rightAr = append(st.rightAr, o.CorrectAnswer)
		} else {
			st.incorrect++
			st.missedAr = append(st.missedAr, o.CorrectAnswer)
			p := pair{student: o.StudentAnswer, correct: o.CorrectAnswer}
			if pairCount[p] == 0 {
				pairOrder = append(pairOrder, p)
			}
			pairCount[p]++
		}
	}

	var candidates []*fact.LearnerFact
	for _, feature := range order {
		st := stats[feature]
		if st.incorrect >= h.policy.StruggleMinIncorrect {
			if f := newCandidate(userID, fact.TypeStruggle, shared.CategoryGrammar, feature,
				fmt.Sprintf("Struggles with %s", featureLabel(feature)), st.missedAr, now); f != nil {
				candidates = append(candidates, f)
			}
		}
		if st.correct >= h.policy.StrengthMinCorrect {
			if f := newCandidate(userID, fact.TypeStrength, shared.CategoryGrammar, feature,
				fmt.Sprintf("Shows strength in %s", featureLabel(feature)), st.rightAr, now); f != nil {
				candidates = append(candidates, f)
			}
		}
	}

	for _, p := range pairOrder {
		if pairCount[p] < h.policy.ConfusionMinCount {
			continue
		}
		key := fmt.Sprintf("confusion:%s:%s", p.student, p.correct)
		if f := newCandidate(userID, fact.TypeStruggle, shared.CategoryGrammar, key,
			fmt.Sprintf("Confuses %s with %s", p.student, p.correct),
			[]string{p.student, p.correct}, now); f != nil {
			candidates = append(candidates, f)
		}
	}
	return candidates
}

// vocabularyCandidates implements the translation analysis: one aggregate
// struggle/strength fact plus a fact naming the most-missed answers.
func (h *ExtractFactsHandler) vocabularyCandidates(userID shared.UserID, obs []observation.Observation, now time.Time) []*fact.LearnerFact {
	var (
		correct, incorrect int
		rightAr            []string
		missedOrder        []string
		missedCount        = make(map[string]int)
	)
	for _, o := range obs {
		if o.Kind != observation.KindTranslationCheck {
			continue
		}
		if o.IsCorrect {
			correct++
			rightAr = append(rightAr, o.CorrectAnswer)
			continue
		}
		incorrect++
		if missedCount[o.CorrectAnswer] == 0 {
			missedOrder = append(missedOrder, o.CorrectAnswer)
		}
		missedCount[o.CorrectAnswer]++
	}
	if correct+incorrect == 0 {
		return nil
	}

	var candidates []*fact.LearnerFact
	if incorrect >= h.policy.StruggleMinIncorrect {
		if f := newCandidate(userID, fact.TypeStruggle, shared.CategoryVocabulary, "vocabulary_recall",
			"Struggles with vocabulary recall", missedOrder, now); f != nil {
			candidates = append(candidates, f)
		}
	}
	if correct >= h.policy.StrengthMinCorrect {
		if f := newCandidate(userID, fact.TypeStrength, shared.CategoryVocabulary, "vocabulary_recall",
			"Good vocabulary recall", rightAr, now); f != nil {
			candidates = append(candidates, f)
		}
	}

	if len(missedOrder) > 0 {
		top := topMissed(missedOrder, missedCount, h.policy.TopMissedLimit)
		if f := newCandidate(userID, fact.TypeStruggle, shared.CategoryVocabulary, "vocabulary_missed",
			fmt.Sprintf("Difficulty remembering: %s", strings.Join(top, ", ")), top, now); f != nil {
			candidates = append(candidates, f)
		}
	}
	return candidates
}

// topMissed ranks missed answers by occurrence count, ties broken by
// first-seen order, capped at limit.
func topMissed(order []string, counts map[string]int, limit int) []string {
	ranked := make([]string, len(order))
	copy(ranked, order)
	// Stable selection keeps first-seen order among equal counts.
	for i := 0; i < len(ranked); i++ {
		best := i
		for j := i + 1; j < len(ranked); j++ {
			if counts[ranked[j]] > counts[ranked[best]] {
				best = j
			}
		}
		if best != i {
			picked := ranked[best]
			copy(ranked[i+1:best+1], ranked[i:best])
			ranked[i] = picked
		}
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// newCandidate builds a candidate fact, swallowing constructor rejections:
// a malformed candidate is evidence lost, not an analysis failure.
func newCandidate(userID shared.UserID, t fact.Type, category shared.Category, featureKey, text string, examples []string, now time.Time) *fact.LearnerFact {
	f, err := fact.New(userID, t, category, featureKey, text, examples, "", now)
	if err != nil {
		return nil
	}
	return f
}

// featureLabel renders a protocol feature identifier as readable prose.
var featureLabels = map[string]string{
	"grammatical_case": "grammatical cases",
	"part_of_speech":   "parts of speech",
	"verb_conjugation": "verb conjugation",
	"word_order":       "word order",
	"preposition":      "prepositions",
	"root_pattern":     "root patterns",
}

func featureLabel(feature string) string {
	if label, ok := featureLabels[feature]; ok {
		return label
	}
	return strings.ReplaceAll(feature, "_", " ")
}

// performanceSummary renders the lesson's one-line scorecard, omitting a
// segment when that kind has no observations.
func performanceSummary(obs []observation.Observation) string {
	var gc, gn, vc, vn int
	for _, o := range obs {
		switch o.Kind {
		case observation.KindGrammarCheck:
			gn++
			if o.IsCorrect {
				gc++
			}
		case observation.KindTranslationCheck:
			vn++
			if o.IsCorrect {
				vc++
			}
		}
	}

	var segments []string
	if gn > 0 {
		segments = append(segments, fmt.Sprintf("Grammar: %d/%d (%d%%)", gc, gn, shared.NewAccuracy(gc, gn).Percent()))
	}
	if vn > 0 {
		segments = append(segments, fmt.Sprintf("Vocabulary: %d/%d (%d%%)", vc, vn, shared.NewAccuracy(vc, vn).Percent()))
	}
	if gn+vn > 0 {
		segments = append(segments, fmt.Sprintf("Overall: %d%%", shared.NewAccuracy(gc+vc, gn+vn).Percent()))
	}
	if len(segments) == 0 {
		return "No graded interactions"
	}
	return strings.Join(segments, " | ")
}
