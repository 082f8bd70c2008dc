// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Usage errors
	ErrQuotaExceeded = errors.New("quota exceeded")

	// Store errors
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrTimeout                = errors.New("operation timeout")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "fact", "quota", "lesson"
	Op      string // Operation that failed, e.g., "Extract", "Increment"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Lesson domain errors
var (
	ErrLessonNotFound        = NewDomainError("lesson", "Find", ErrNotFound, "lesson not found")
	ErrLessonAlreadyAnalyzed = NewDomainError("lesson", "Analyze", ErrAlreadyProcessed, "lesson already analyzed")
	ErrUserUnresolvable      = NewDomainError("lesson", "ResolveUser", ErrNotFound, "no user resolvable for session")
)

// Observation domain errors
var (
	ErrObservationNotFound = NewDomainError("observation", "Find", ErrNotFound, "observation not found")
	ErrInvalidObservation  = NewDomainError("observation", "Validate", ErrInvalidEntity, "invalid observation")
	ErrInvalidWordID       = NewDomainError("observation", "Validate", ErrInvalidID, "word ID must be a non-negative integer")
)

// Fact domain errors
var (
	ErrFactNotFound     = NewDomainError("fact", "Find", ErrNotFound, "learner fact not found")
	ErrInvalidFactType  = NewDomainError("fact", "Validate", ErrInvalidInput, "invalid fact type")
	ErrFactInactive     = NewDomainError("fact", "Update", ErrInvalidState, "fact is inactive")
	ErrFactTextRequired = NewDomainError("fact", "Validate", ErrEmptyValue, "fact text is required")
)

// Quota domain errors
var (
	ErrProfileNotFound  = NewDomainError("quota", "Find", ErrNotFound, "quota profile not found")
	ErrInvalidTier      = NewDomainError("quota", "Validate", ErrInvalidInput, "invalid quota tier")
	ErrMessageLimit     = NewDomainError("quota", "CanSend", ErrQuotaExceeded, "weekly message limit reached")
	ErrTokenLimit       = NewDomainError("quota", "CanSend", ErrQuotaExceeded, "weekly token limit reached")
	ErrNegativeTokens   = NewDomainError("quota", "Increment", ErrNegativeValue, "token count cannot be negative")
	ErrUsageWouldShrink = NewDomainError("quota", "Increment", ErrInvalidState, "usage counters never decrease inside a window")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsQuotaExceeded checks if the error is a quota denial.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsStoreUnavailable checks if the error is a transient store failure.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrTimeout)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried.
// Quota denials are terminal for the current turn and are never retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
