// Package fact contains the domain entity for durable learner facts:
// evidence-backed statements about a user's ability, merged across lessons.
// Facts outlive any single lesson; a lesson only contributes evidence.
// This is a pure domain layer with zero external dependencies.
package fact

import (
	"strings"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// Type classifies a learner fact.
type Type string

const (
	TypeStruggle   Type = "struggle"
	TypeStrength   Type = "strength"
	TypeInterest   Type = "interest"
	TypePreference Type = "preference"
)

// IsValid checks if the fact type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeStruggle, TypeStrength, TypeInterest, TypePreference:
		return true
	}
	return false
}

// String returns the string representation.
func (t Type) String() string {
	return string(t)
}

const (
	// MaxArabicExamples caps the stored example set per fact.
	MaxArabicExamples = 5

	// MergeKeyLength is the normalized fact-text prefix length used as the
	// fuzzy merge key between candidate and existing facts.
	MergeKeyLength = 30
)

// LearnerFact is a durable belief about one learner.
// Counters are monotonic; a fact becomes inactive only through
// reconciliation and is never deleted.
type LearnerFact struct {
	ID       string
	UserID   shared.UserID
	FactType Type

	// FactText is the human-readable summary. Its normalized prefix also
	// serves as the fuzzy merge key (see MergeKey).
	FactText string

	Category shared.Category

	// FeatureKey is the stable identifier of the probed feature when one
	// exists (e.g. "grammatical_case"). Preferred over FactText for
	// de-duplication because text similarity both over- and under-merges.
	FeatureKey string

	// ArabicExamples is an ordered, deduplicated set capped at
	// MaxArabicExamples entries.
	ArabicExamples []string

	ObservationCount int
	SuccessCount     int

	FirstObserved time.Time
	LastConfirmed time.Time
	IsActive      bool

	// SourceLessonIDs records every lesson that contributed evidence.
	// Re-processing a recorded lesson contributes nothing, which keeps
	// extraction idempotent per session.
	SourceLessonIDs []string
}

// New creates a learner fact from first evidence.
func New(userID shared.UserID, factType Type, category shared.Category, featureKey, factText string, examples []string, sourceLessonID string, at time.Time) (*LearnerFact, error) {
	if userID.IsEmpty() {
		return nil, shared.NewDomainError("fact", "New", shared.ErrInvalidID, "user ID is required")
	}
	if !factType.IsValid() {
		return nil, shared.ErrInvalidFactType
	}
	if strings.TrimSpace(factText) == "" {
		return nil, shared.ErrFactTextRequired
	}

	f := &LearnerFact{
		UserID:           userID,
		FactType:         factType,
		FactText:         factText,
		Category:         category,
		FeatureKey:       featureKey,
		ObservationCount: 1,
		FirstObserved:    at,
		LastConfirmed:    at,
		IsActive:         true,
	}
	if factType == TypeStrength {
		f.SuccessCount = 1
	}
	f.ArabicExamples = dedupeCapped(examples, MaxArabicExamples)
	if sourceLessonID != "" {
		f.SourceLessonIDs = []string{sourceLessonID}
	}
	return f, nil
}

// MergeKey returns the normalized fact-text prefix used for fuzzy matching:
// lowercased, whitespace-trimmed, first MergeKeyLength characters.
func (f *LearnerFact) MergeKey() string {
	return NormalizeMergeKey(f.FactText)
}

// NormalizeMergeKey normalizes arbitrary fact text into a merge key.
func NormalizeMergeKey(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	runes := []rune(t)
	if len(runes) > MergeKeyLength {
		runes = runes[:MergeKeyLength]
	}
	return string(runes)
}

// HasSourceLesson reports whether the lesson already contributed evidence.
func (f *LearnerFact) HasSourceLesson(lessonID string) bool {
	for _, id := range f.SourceLessonIDs {
		if id == lessonID {
			return true
		}
	}
	return false
}

// Reinforce merges one lesson's worth of candidate evidence into the fact:
// counters increment, examples union, last-confirmed bumps. A lesson that
// already contributed is a no-op, and the method reports whether the fact
// actually changed.
func (f *LearnerFact) Reinforce(candidate *LearnerFact, sourceLessonID string, at time.Time) bool {
	if !f.IsActive {
		return false
	}
	if sourceLessonID != "" && f.HasSourceLesson(sourceLessonID) {
		return false
	}

	f.ObservationCount++
	if f.FactType == TypeStrength {
		f.SuccessCount++
	}
	f.ArabicExamples = dedupeCapped(append(f.ArabicExamples, candidate.ArabicExamples...), MaxArabicExamples)
	f.LastConfirmed = at
	if f.FeatureKey == "" && candidate.FeatureKey != "" {
		f.FeatureKey = candidate.FeatureKey
	}
	if sourceLessonID != "" {
		f.SourceLessonIDs = append(f.SourceLessonIDs, sourceLessonID)
	}
	return true
}

// Deactivate retires the fact. Only reconciliation calls this.
func (f *LearnerFact) Deactivate() {
	f.IsActive = false
}

// SupersededBy reports whether a strength fact in the same category carries
// newer, equally-or-better evidence than this struggle. This is the coarse
// reconciliation policy, not a statistical test.
func (f *LearnerFact) SupersededBy(strength *LearnerFact) bool {
	if f.FactType != TypeStruggle || strength.FactType != TypeStrength {
		return false
	}
	if f.Category != strength.Category {
		return false
	}
	return strength.LastConfirmed.After(f.LastConfirmed) &&
		strength.ObservationCount >= f.ObservationCount
}

// dedupeCapped keeps first occurrences in order, capped at n entries.
func dedupeCapped(values []string, n int) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, n)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}
