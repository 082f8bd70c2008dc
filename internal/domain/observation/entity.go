// Package observation contains the domain entity for graded micro-interactions
// decoded from the inline tutoring protocol. Observations are immutable once
// created and are owned by the lesson that produced them.
// This is a pure domain layer with zero external dependencies.
package observation

import (
	"strings"
	"time"

	"github.com/daris-app/daris-tutor-core/internal/domain/shared"
)

// Kind discriminates the three observation shapes the protocol can carry.
type Kind string

const (
	// KindGrammarCheck is a graded grammar probe on one vocabulary item.
	KindGrammarCheck Kind = "grammar_check"

	// KindTranslationCheck is a graded translation probe on one vocabulary item.
	KindTranslationCheck Kind = "translation_check"

	// KindFreeformError is a free-text correction logged by the teacher model.
	KindFreeformError Kind = "freeform_error"
)

// IsValid checks if the kind is one of the known observation shapes.
func (k Kind) IsValid() bool {
	switch k {
	case KindGrammarCheck, KindTranslationCheck, KindFreeformError:
		return true
	}
	return false
}

// String returns the string representation.
func (k Kind) String() string {
	return string(k)
}

// Observation is one graded interaction between the learner and the teacher
// model. WordID and UserID are optional: a freeform correction carries no word
// reference, and the user may be unknown until later reconciliation.
type Observation struct {
	ID        string
	Kind      Kind
	SessionID shared.SessionID
	UserID    shared.UserID // empty when not yet resolved

	// WordID references a vocabulary item. nil for freeform errors.
	// When present it is always non-negative; the decoder drops fragments
	// that cannot produce a real id.
	WordID *shared.WordID

	// Feature names the grammar feature probed (grammar checks only),
	// e.g. "grammatical_case", "part_of_speech".
	Feature string

	StudentAnswer string
	CorrectAnswer string
	IsCorrect     bool

	// ErrorType and Context carry the freeform correction log fields.
	ErrorType string
	Context   string

	CreatedAt time.Time
}

// NewGrammarCheck creates a grammar observation.
func NewGrammarCheck(sessionID shared.SessionID, wordID shared.WordID, feature, studentAnswer, correctAnswer string, isCorrect bool, at time.Time) (Observation, error) {
	if !sessionID.IsValid() {
		return Observation{}, shared.ErrInvalidObservation
	}
	if !wordID.IsValid() {
		return Observation{}, shared.ErrInvalidWordID
	}
	if strings.TrimSpace(feature) == "" {
		return Observation{}, shared.WrapError("observation", "NewGrammarCheck", shared.ErrEmptyValue, "feature is required", nil)
	}
	w := wordID
	return Observation{
		Kind:          KindGrammarCheck,
		SessionID:     sessionID,
		WordID:        &w,
		Feature:       feature,
		StudentAnswer: studentAnswer,
		CorrectAnswer: correctAnswer,
		IsCorrect:     isCorrect,
		CreatedAt:     at,
	}, nil
}

// NewTranslationCheck creates a translation observation.
func NewTranslationCheck(sessionID shared.SessionID, wordID shared.WordID, studentAnswer, correctAnswer string, isCorrect bool, at time.Time) (Observation, error) {
	if !sessionID.IsValid() {
		return Observation{}, shared.ErrInvalidObservation
	}
	if !wordID.IsValid() {
		return Observation{}, shared.ErrInvalidWordID
	}
	w := wordID
	return Observation{
		Kind:          KindTranslationCheck,
		SessionID:     sessionID,
		WordID:        &w,
		StudentAnswer: studentAnswer,
		CorrectAnswer: correctAnswer,
		IsCorrect:     isCorrect,
		CreatedAt:     at,
	}, nil
}

// NewFreeformError creates a freeform correction observation.
// All fields default to empty strings; a correction log with no parsed
// fields is still a valid (if uninformative) observation.
func NewFreeformError(sessionID shared.SessionID, errorType, studentSaid, correction, context string, at time.Time) (Observation, error) {
	if !sessionID.IsValid() {
		return Observation{}, shared.ErrInvalidObservation
	}
	return Observation{
		Kind:          KindFreeformError,
		SessionID:     sessionID,
		ErrorType:     errorType,
		StudentAnswer: studentSaid,
		CorrectAnswer: correction,
		Context:       context,
		IsCorrect:     false,
		CreatedAt:     at,
	}, nil
}

// WithUser returns a copy of the observation attributed to the given user.
func (o Observation) WithUser(userID shared.UserID) Observation {
	o.UserID = userID
	return o
}

// HasWord reports whether the observation references a vocabulary item.
func (o Observation) HasWord() bool {
	return o.WordID != nil
}

// IsGraded reports whether the observation carries a correct/incorrect verdict.
// Freeform corrections are implicitly incorrect but not graded probes.
func (o Observation) IsGraded() bool {
	return o.Kind == KindGrammarCheck || o.Kind == KindTranslationCheck
}
