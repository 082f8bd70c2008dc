package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/observation"
	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
	"github.com/daris-app/daris-tutor-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE REPORT QUERY
// Builds the post-lesson progress report from the session's observations:
// weighted score, recurring error patterns, recommendations, breakthroughs
// and a motivational line. Reports are a pure read model - generating one
// never mutates facts or lessons.
// ══════════════════════════════════════════════════════════════════════════════

// Report scoring parameters. The score starts at a neutral midpoint and
// moves per skill event, scaled by the category weight.
const (
	scoreBase             = 50
	scoreStrengthPerW     = 3
	scoreWeaknessPerW     = 2
	scoreBreakthroughPerW = 5

	maxPatterns        = 5
	maxRecommendations = 5
)

// Pattern impact levels, ordered weakest to strongest.
const (
	ImpactLow    = "low"
	ImpactMedium = "medium"
	ImpactHigh   = "high"
)

// ErrorPattern is one recurring weakness surfaced by the report.
type ErrorPattern struct {
	Skill       string `json:"skill"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Frequency   int    `json:"frequency"`
	Impact      string `json:"impact"`
}

// Breakthrough marks a skill the learner failed and then landed within the
// same session.
type Breakthrough struct {
	Skill       string `json:"skill"`
	Description string `json:"description"`
}

// SessionSummary is the report's headline block.
type SessionSummary struct {
	// TimeSpentSeconds spans the first to the last observation; a session
	// with fewer than two observations reads as zero.
	TimeSpentSeconds  int `json:"time_spent_seconds"`
	TotalInteractions int `json:"total_interactions"`
	OverallScore      int `json:"overall_score"`
}

// SkillSummary is one skill's tally within a session.
type SkillSummary struct {
	Skill    string `json:"skill"`
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Report is the lesson progress report.
type Report struct {
	SessionID       string         `json:"session_id"`
	UserID          string         `json:"user_id,omitempty"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Summary         SessionSummary `json:"session_summary"`
	Strengths       []SkillSummary `json:"strengths,omitempty"`
	Weaknesses      []SkillSummary `json:"weaknesses,omitempty"`
	Patterns        []ErrorPattern `json:"patterns,omitempty"`
	Breakthroughs   []Breakthrough `json:"breakthroughs,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Motivation      string         `json:"motivational_message"`
}

// ReportCache caches generated reports keyed by session.
// Implementations live in the infrastructure layer; a nil cache disables
// caching entirely.
type ReportCache interface {
	// Get returns the cached report or shared.ErrNotFound.
	Get(ctx context.Context, sessionID string) (*Report, error)

	// Set stores the report.
	Set(ctx context.Context, report *Report) error

	// Invalidate drops the cached report for a session.
	Invalidate(ctx context.Context, sessionID string) error
}

// GenerateReportQuery identifies the lesson to report on.
type GenerateReportQuery struct {
	SessionID string
	UserID    string // optional, echoed into the report

	// Fresh skips the cache read (the write still happens).
	Fresh bool
}

// Validate validates the query.
func (q GenerateReportQuery) Validate() error {
	if _, err := shared.NewSessionID(q.SessionID); err != nil {
		return err
	}
	return nil
}

// GenerateReportHandler handles GenerateReportQuery.
type GenerateReportHandler struct {
	observations observation.Repository
	cache        ReportCache
	clock        shared.Clock
	log          *logger.Logger
}

// NewGenerateReportHandler creates a GenerateReportHandler.
func NewGenerateReportHandler(
	observations observation.Repository,
	cache ReportCache,
	clock shared.Clock,
	log *logger.Logger,
) *GenerateReportHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GenerateReportHandler{
		observations: observations,
		cache:        cache,
		clock:        clock,
		log:          log,
	}
}

// Handle builds the report. A session with no observations still yields a
// minimal report at the neutral score rather than an error, because "we saw
// nothing gradeable" is a legitimate lesson outcome.
func (h *GenerateReportHandler) Handle(ctx context.Context, q GenerateReportQuery) (*Report, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil && !q.Fresh {
		if cached, err := h.cache.Get(ctx, q.SessionID); err == nil && cached != nil {
			return cached, nil
		} else if err != nil && !shared.IsNotFound(err) {
			h.log.Warn("report cache read failed", logger.SessionID(q.SessionID), logger.Err(err))
		}
	}

	obs, err := h.observations.ListBySession(ctx, shared.SessionID(q.SessionID))
	if err != nil {
		return nil, err
	}

	events := deriveSkillEvents(obs)
	score := computeScore(events)
	report := &Report{
		SessionID:   q.SessionID,
		UserID:      q.UserID,
		GeneratedAt: h.clock.Now(),
		Summary: SessionSummary{
			TimeSpentSeconds:  timeSpentSeconds(obs),
			TotalInteractions: len(obs),
			OverallScore:      score,
		},
		Strengths:     summarizeSkills(events, eventStrength),
		Weaknesses:    summarizeSkills(events, eventWeakness),
		Patterns:      detectPatterns(events),
		Breakthroughs: collectBreakthroughs(events),
	}
	report.Recommendations = buildRecommendations(report.Patterns, events)
	report.Motivation = motivationFor(score)

	if h.cache != nil {
		if err := h.cache.Set(ctx, report); err != nil {
			h.log.Warn("report cache write failed", logger.SessionID(q.SessionID), logger.Err(err))
		}
	}
	return report, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// Skill events
// ══════════════════════════════════════════════════════════════════════════════

type eventKind int

const (
	eventStrength eventKind = iota
	eventWeakness
	eventBreakthrough
)

// skillEvent is one graded signal about one skill, in session order.
type skillEvent struct {
	skill    string
	category shared.Category
	kind     eventKind
}

// deriveSkillEvents maps raw observations onto skill events. A correct
// answer on a skill the learner already missed this session upgrades to a
// breakthrough. Freeform correction logs count as weaknesses on the logged
// error type.
func deriveSkillEvents(obs []observation.Observation) []skillEvent {
	events := make([]skillEvent, 0, len(obs))
	missed := make(map[string]bool)

	for _, o := range obs {
		var (
			skill    string
			category shared.Category
			graded   bool
			correct  bool
		)
		switch o.Kind {
		case observation.KindGrammarCheck:
			skill, category, graded, correct = o.Feature, shared.CategoryGrammar, true, o.IsCorrect
		case observation.KindTranslationCheck:
			skill, category, graded, correct = o.CorrectAnswer, shared.CategoryVocabulary, true, o.IsCorrect
		case observation.KindFreeformError:
			skill, category = o.ErrorType, shared.CategoryGrammar
		}
		if skill == "" {
			continue
		}

		switch {
		case graded && correct && missed[skill]:
			events = append(events, skillEvent{skill: skill, category: category, kind: eventBreakthrough})
		case graded && correct:
			events = append(events, skillEvent{skill: skill, category: category, kind: eventStrength})
		default:
			missed[skill] = true
			events = append(events, skillEvent{skill: skill, category: category, kind: eventWeakness})
		}
	}
	return events
}

// computeScore folds the events into a 0-100 score.
func computeScore(events []skillEvent) int {
	score := scoreBase
	for _, e := range events {
		w := e.category.Weight()
		switch e.kind {
		case eventStrength:
			score += scoreStrengthPerW * w
		case eventWeakness:
			score -= scoreWeaknessPerW * w
		case eventBreakthrough:
			score += scoreBreakthroughPerW * w
		}
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// detectPatterns surfaces skills missed at least twice, ranked by impact
// then frequency, capped at maxPatterns.
func detectPatterns(events []skillEvent) []ErrorPattern {
	var order []string
	counts := make(map[string]int)
	cats := make(map[string]shared.Category)
	for _, e := range events {
		if e.kind != eventWeakness {
			continue
		}
		if counts[e.skill] == 0 {
			order = append(order, e.skill)
			cats[e.skill] = e.category
		}
		counts[e.skill]++
	}

	var patterns []ErrorPattern
	for _, skill := range order {
		freq := counts[skill]
		if freq < 2 {
			continue
		}
		patterns = append(patterns, ErrorPattern{
			Skill:       skill,
			Category:    cats[skill].String(),
			Description: fmt.Sprintf("Repeated errors with %s (%d times this lesson)", skillLabel(skill), freq),
			Frequency:   freq,
			Impact:      impactFor(cats[skill].Weight()),
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		ri, rj := impactRank(patterns[i].Impact), impactRank(patterns[j].Impact)
		if ri != rj {
			return ri > rj
		}
		return patterns[i].Frequency > patterns[j].Frequency
	})
	if len(patterns) > maxPatterns {
		patterns = patterns[:maxPatterns]
	}
	return patterns
}

// impactFor maps a pattern's category weight onto its impact band: the core
// categories (grammar, vocabulary) always rank high, mid-weight ones medium.
func impactFor(weight int) string {
	switch {
	case weight >= 4:
		return ImpactHigh
	case weight >= 2:
		return ImpactMedium
	}
	return ImpactLow
}

func impactRank(impact string) int {
	switch impact {
	case ImpactHigh:
		return 2
	case ImpactMedium:
		return 1
	}
	return 0
}

// collectBreakthroughs returns each skill's first breakthrough.
func collectBreakthroughs(events []skillEvent) []Breakthrough {
	seen := make(map[string]bool)
	var out []Breakthrough
	for _, e := range events {
		if e.kind != eventBreakthrough || seen[e.skill] {
			continue
		}
		seen[e.skill] = true
		out = append(out, Breakthrough{
			Skill:       e.skill,
			Description: fmt.Sprintf("Got %s right after earlier mistakes", skillLabel(e.skill)),
		})
	}
	return out
}

// summarizeSkills tallies events of one kind per skill, in order of first
// appearance. A skill missed and later landed shows up under weaknesses and
// breakthroughs, not strengths.
func summarizeSkills(events []skillEvent, kind eventKind) []SkillSummary {
	var order []string
	counts := make(map[string]int)
	cats := make(map[string]shared.Category)
	for _, e := range events {
		if e.kind != kind {
			continue
		}
		if counts[e.skill] == 0 {
			order = append(order, e.skill)
			cats[e.skill] = e.category
		}
		counts[e.skill]++
	}

	out := make([]SkillSummary, 0, len(order))
	for _, skill := range order {
		out = append(out, SkillSummary{
			Skill:    skill,
			Category: cats[skill].String(),
			Count:    counts[skill],
		})
	}
	return out
}

// timeSpentSeconds spans the earliest to the latest observation timestamp.
func timeSpentSeconds(obs []observation.Observation) int {
	if len(obs) < 2 {
		return 0
	}
	first, last := obs[0].CreatedAt, obs[0].CreatedAt
	for _, o := range obs[1:] {
		if o.CreatedAt.Before(first) {
			first = o.CreatedAt
		}
		if o.CreatedAt.After(last) {
			last = o.CreatedAt
		}
	}
	return int(last.Sub(first).Seconds())
}

// buildRecommendations fills up to maxRecommendations slots with study
// advice: one per pattern first (patterns arrive ranked high-impact first),
// then the most frequent remaining weaknesses, so a session of one-off
// mistakes still comes back with something to practice.
func buildRecommendations(patterns []ErrorPattern, events []skillEvent) []string {
	var recs []string
	covered := make(map[string]bool)
	for _, p := range patterns {
		if len(recs) == maxRecommendations {
			return recs
		}
		covered[p.Skill] = true
		recs = append(recs, recommendationFor(p.Skill))
	}

	remaining := summarizeSkills(events, eventWeakness)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].Count > remaining[j].Count
	})
	for _, w := range remaining {
		if len(recs) == maxRecommendations {
			break
		}
		if covered[w.Skill] {
			continue
		}
		covered[w.Skill] = true
		recs = append(recs, recommendationFor(w.Skill))
	}
	return recs
}

func recommendationFor(skill string) string {
	s := strings.ToLower(skill)
	switch {
	case strings.Contains(s, "preposition"):
		return "Practice preposition pairings with short location phrases"
	case strings.Contains(s, "verb_conjugation"), strings.Contains(s, "conjugation"):
		return "Drill present-tense conjugation tables for the verbs you missed"
	case strings.Contains(s, "grammatical_case"), strings.Contains(s, "case"):
		return "Review case endings with simple subject-object sentences"
	case strings.Contains(s, "root"):
		return "Work through root-pattern families to anchor related words"
	case strings.Contains(s, "word_order"):
		return "Rebuild the missed sentences word by word to internalize order"
	}
	return fmt.Sprintf("Spend extra review time on %s before the next lesson", skillLabel(skill))
}

// skillLabel renders a skill identifier as readable prose.
func skillLabel(skill string) string {
	return strings.ReplaceAll(skill, "_", " ")
}

// motivationFor picks the report's closing line by score band.
func motivationFor(score int) string {
	switch {
	case score >= 90:
		return "Outstanding lesson - you are mastering this material!"
	case score >= 75:
		return "Great work today. Your consistency is paying off."
	case score >= 60:
		return "Solid progress. Keep building on what you practiced."
	case score >= 40:
		return "Good effort - the tricky spots today are tomorrow's strengths."
	default:
		return "Every lesson counts. Review the patterns above and try again soon."
	}
}
