// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened in the tutoring core.
const (
	// Lesson events
	EventLessonStarted  EventType = "lesson.started"
	EventLessonIngested EventType = "lesson.ingested"
	EventLessonAnalyzed EventType = "lesson.analyzed"

	// Fact events
	EventFactCreated     EventType = "fact.created"
	EventFactReinforced  EventType = "fact.reinforced"
	EventFactDeactivated EventType = "fact.deactivated"

	// Quota events
	EventUsageIncremented EventType = "quota.usage_incremented"
	EventQuotaDenied      EventType = "quota.denied"
	EventQuotaReset       EventType = "quota.reset"

	// System events
	EventWeeklySweepCompleted EventType = "system.weekly_sweep_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Lesson Events
// ═══════════════════════════════════════════════════════════════════════════

// LessonIngestedEvent is emitted when a turn's observations are persisted.
type LessonIngestedEvent struct {
	BaseEvent
	SessionID        string `json:"session_id"`
	UserID           string `json:"user_id,omitempty"`
	ObservationCount int    `json:"observation_count"`
}

// NewLessonIngestedEvent creates a LessonIngestedEvent.
func NewLessonIngestedEvent(sessionID, userID string, count int) LessonIngestedEvent {
	return LessonIngestedEvent{
		BaseEvent:        NewBaseEvent(EventLessonIngested, sessionID),
		SessionID:        sessionID,
		UserID:           userID,
		ObservationCount: count,
	}
}

// Payload implements Event interface.
func (e LessonIngestedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":        e.SessionID,
		"user_id":           e.UserID,
		"observation_count": e.ObservationCount,
	}
}

// LessonAnalyzedEvent is emitted after fact extraction completes for a lesson.
// Subscribers use it to kick off fact reconciliation for the user.
type LessonAnalyzedEvent struct {
	BaseEvent
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id"`
	FactsCreated int    `json:"facts_created"`
	FactsUpdated int    `json:"facts_updated"`
	Summary      string `json:"summary"`
}

// NewLessonAnalyzedEvent creates a LessonAnalyzedEvent.
func NewLessonAnalyzedEvent(sessionID, userID string, created, updated int, summary string) LessonAnalyzedEvent {
	return LessonAnalyzedEvent{
		BaseEvent:    NewBaseEvent(EventLessonAnalyzed, sessionID),
		SessionID:    sessionID,
		UserID:       userID,
		FactsCreated: created,
		FactsUpdated: updated,
		Summary:      summary,
	}
}

// Payload implements Event interface.
func (e LessonAnalyzedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":    e.SessionID,
		"user_id":       e.UserID,
		"facts_created": e.FactsCreated,
		"facts_updated": e.FactsUpdated,
		"summary":       e.Summary,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Fact Events
// ═══════════════════════════════════════════════════════════════════════════

// FactDeactivatedEvent is emitted when reconciliation retires a struggle fact.
type FactDeactivatedEvent struct {
	BaseEvent
	UserID       string `json:"user_id"`
	FactID       string `json:"fact_id"`
	Category     string `json:"category"`
	SupersededBy string `json:"superseded_by"`
}

// NewFactDeactivatedEvent creates a FactDeactivatedEvent.
func NewFactDeactivatedEvent(userID, factID, category, supersededBy string) FactDeactivatedEvent {
	return FactDeactivatedEvent{
		BaseEvent:    NewBaseEvent(EventFactDeactivated, factID),
		UserID:       userID,
		FactID:       factID,
		Category:     category,
		SupersededBy: supersededBy,
	}
}

// Payload implements Event interface.
func (e FactDeactivatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"fact_id":       e.FactID,
		"category":      e.Category,
		"superseded_by": e.SupersededBy,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Quota Events
// ═══════════════════════════════════════════════════════════════════════════

// QuotaDeniedEvent is emitted when CanSend rejects a turn.
type QuotaDeniedEvent struct {
	BaseEvent
	UserID  string    `json:"user_id"`
	Reason  string    `json:"reason"`
	ResetAt time.Time `json:"reset_at"`
}

// NewQuotaDeniedEvent creates a QuotaDeniedEvent.
func NewQuotaDeniedEvent(userID, reason string, resetAt time.Time) QuotaDeniedEvent {
	return QuotaDeniedEvent{
		BaseEvent: NewBaseEvent(EventQuotaDenied, userID),
		UserID:    userID,
		Reason:    reason,
		ResetAt:   resetAt,
	}
}

// Payload implements Event interface.
func (e QuotaDeniedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.UserID,
		"reason":   e.Reason,
		"reset_at": e.ResetAt.Format(time.RFC3339),
	}
}

// QuotaResetEvent is emitted when a profile's window rolls over,
// either lazily on access or by the weekly sweep.
type QuotaResetEvent struct {
	BaseEvent
	UserID      string    `json:"user_id"`
	NextResetAt time.Time `json:"next_reset_at"`
	Source      string    `json:"source"` // "lazy" or "sweep"
}

// NewQuotaResetEvent creates a QuotaResetEvent.
func NewQuotaResetEvent(userID string, nextResetAt time.Time, source string) QuotaResetEvent {
	return QuotaResetEvent{
		BaseEvent:   NewBaseEvent(EventQuotaReset, userID),
		UserID:      userID,
		NextResetAt: nextResetAt,
		Source:      source,
	}
}

// Payload implements Event interface.
func (e QuotaResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"next_reset_at": e.NextResetAt.Format(time.RFC3339),
		"source":        e.Source,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber

	// Close shuts down the bus and waits for in-flight handlers.
	Close() error
}

// NopPublisher discards all events. Useful when no bus is wired.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
