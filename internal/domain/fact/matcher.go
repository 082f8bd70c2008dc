package fact

import "strings"

// Matcher decides whether an existing active fact and a freshly extracted
// candidate describe the same belief, i.e. whether extraction should
// reinforce the existing fact instead of inserting a new one.
//
// Matching is a heuristic, not a correctness law, so it is pluggable.
type Matcher interface {
	// SameFact reports whether existing and candidate should merge.
	// Both facts are guaranteed to share user, type, and category.
	SameFact(existing, candidate *LearnerFact) bool
}

// SubstringMatcher reproduces the reference merge behavior: an existing
// fact matches when its text contains the candidate's normalized
// MergeKeyLength-character prefix, case-insensitively.
//
// Known failure modes: over-merges unrelated facts sharing a common phrase
// and under-merges paraphrased restatements. Kept for parity; prefer
// FeatureKeyMatcher whenever a feature key exists.
type SubstringMatcher struct{}

// SameFact implements Matcher.
func (SubstringMatcher) SameFact(existing, candidate *LearnerFact) bool {
	key := candidate.MergeKey()
	if key == "" {
		return false
	}
	return strings.Contains(strings.ToLower(existing.FactText), key)
}

// FeatureKeyMatcher matches on the exact feature identifier. Reliable when
// the candidate carries one (grammar facts always do).
type FeatureKeyMatcher struct{}

// SameFact implements Matcher.
func (FeatureKeyMatcher) SameFact(existing, candidate *LearnerFact) bool {
	return candidate.FeatureKey != "" && existing.FeatureKey == candidate.FeatureKey
}

// DefaultMatcher keys on the feature identifier when the candidate has one
// and falls back to the substring heuristic otherwise.
type DefaultMatcher struct{}

// SameFact implements Matcher.
func (DefaultMatcher) SameFact(existing, candidate *LearnerFact) bool {
	if candidate.FeatureKey != "" {
		return FeatureKeyMatcher{}.SameFact(existing, candidate)
	}
	return SubstringMatcher{}.SameFact(existing, candidate)
}
