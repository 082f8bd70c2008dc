// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID represents a unique learner identifier (UUID format).
type UserID string

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the user ID is a valid UUID.
func (u UserID) IsValid() bool {
	return uuidRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.ToLower(strings.TrimSpace(id)))
	if !uid.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "invalid user ID format")
	}
	return uid, nil
}

// SessionID identifies one bounded tutoring interaction (a lesson).
// Session ids are opaque strings minted by the chat collaborator.
type SessionID string

// IsValid checks if the session ID is usable as a partition key.
func (s SessionID) IsValid() bool {
	trimmed := strings.TrimSpace(string(s))
	return trimmed != "" && len(trimmed) <= 128
}

// String returns the string representation.
func (s SessionID) String() string {
	return string(s)
}

// NewSessionID creates a new SessionID with validation.
func NewSessionID(id string) (SessionID, error) {
	sid := SessionID(strings.TrimSpace(id))
	if !sid.IsValid() {
		return "", NewDomainError("shared", "NewSessionID", ErrInvalidID, "invalid session ID")
	}
	return sid, nil
}

// WordID references a vocabulary item in the word bank.
// A negative WordID is never valid; the decoder drops fragments that
// cannot produce one rather than emitting a placeholder.
type WordID int

// IsValid checks if the word ID is non-negative.
func (w WordID) IsValid() bool {
	return w >= 0
}

// Int returns the underlying int value.
func (w WordID) Int() int {
	return int(w)
}

// ═══════════════════════════════════════════════════════════════════════════
// Category Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Category classifies a skill area for facts and report scoring.
type Category string

const (
	CategoryGrammar       Category = "grammar"
	CategoryVocabulary    Category = "vocabulary"
	CategoryComprehension Category = "comprehension"
	CategoryFluency       Category = "fluency"
	CategoryPronunciation Category = "pronunciation"
)

// Weight returns the fixed scoring weight for the category.
// Unknown categories weigh 1, same as pronunciation.
func (c Category) Weight() int {
	switch c {
	case CategoryGrammar:
		return 5
	case CategoryVocabulary:
		return 4
	case CategoryComprehension:
		return 3
	case CategoryFluency:
		return 2
	default:
		return 1
	}
}

// IsValid checks if the category is one of the known skill areas.
func (c Category) IsValid() bool {
	switch c {
	case CategoryGrammar, CategoryVocabulary, CategoryComprehension,
		CategoryFluency, CategoryPronunciation:
		return true
	}
	return false
}

// String returns the string representation.
func (c Category) String() string {
	return string(c)
}

// ═══════════════════════════════════════════════════════════════════════════
// Accuracy Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Accuracy is a correct/total ratio in [0,1].
type Accuracy float64

// NewAccuracy computes accuracy from counts; zero total yields zero.
func NewAccuracy(correct, total int) Accuracy {
	if total <= 0 {
		return 0
	}
	return Accuracy(float64(correct) / float64(total))
}

// Percent returns the accuracy as a rounded integer percentage.
func (a Accuracy) Percent() int {
	return int(float64(a)*100 + 0.5)
}

// Float returns the underlying float64 value.
func (a Accuracy) Float() float64 {
	return float64(a)
}
