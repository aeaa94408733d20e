package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each one marks a committed change of the store.
const (
	// Ingestion events
	EventBatchIngested    EventType = "ingest.batch_ingested"
	EventStoreReplaced    EventType = "ingest.store_replaced"
	EventStoreWiped       EventType = "ingest.store_wiped"
	EventOrphansCollected EventType = "ingest.orphans_collected"

	// Roster events
	EventIdentityCreated EventType = "roster.identity_created"
	EventIdentityDeleted EventType = "roster.identity_deleted"
	EventAdminBootstrap  EventType = "roster.admin_bootstrapped"
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
		Timestamp:   time.Now(),
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
// Ingestion Events
// ═══════════════════════════════════════════════════════════════════════════

// BatchIngestedEvent is emitted after a batch transaction commits.
// The aggregate ID is the ingestion run ID.
type BatchIngestedEvent struct {
	BaseEvent
	Source  string `json:"source"`
	Mode    string `json:"mode"`
	Added   int    `json:"added"`
	Skipped int    `json:"skipped"`
}

// Payload implements Event interface.
func (e BatchIngestedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"source":  e.Source,
		"mode":    e.Mode,
		"added":   e.Added,
		"skipped": e.Skipped,
	}
}

// NewBatchIngestedEvent creates a new BatchIngestedEvent.
func NewBatchIngestedEvent(runID, source, mode string, added, skipped int) BatchIngestedEvent {
	return BatchIngestedEvent{
		BaseEvent: NewBaseEvent(EventBatchIngested, runID).WithCorrelationID(runID),
		Source:    source,
		Mode:      mode,
		Added:     added,
		Skipped:   skipped,
	}
}

// StoreChangedEvent covers bulk changes that carry only a count:
// full replacement, wipes and orphan collection.
type StoreChangedEvent struct {
	BaseEvent
	Affected int `json:"affected"`
}

// Payload implements Event interface.
func (e StoreChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"affected": e.Affected,
	}
}

// NewStoreChangedEvent creates a new StoreChangedEvent of the given type.
func NewStoreChangedEvent(eventType EventType, runID string, affected int) StoreChangedEvent {
	return StoreChangedEvent{
		BaseEvent: NewBaseEvent(eventType, runID).WithCorrelationID(runID),
		Affected:  affected,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Roster Events
// ═══════════════════════════════════════════════════════════════════════════

// IdentityDeletedEvent is emitted when an identity and its dependents are removed.
type IdentityDeletedEvent struct {
	BaseEvent
	Role                string `json:"role"`
	DeletedMeasurements int    `json:"deleted_measurements"`
}

// Payload implements Event interface.
func (e IdentityDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"role":                 e.Role,
		"deleted_measurements": e.DeletedMeasurements,
	}
}

// NewIdentityDeletedEvent creates a new IdentityDeletedEvent.
func NewIdentityDeletedEvent(identityID, role string, deletedMeasurements int) IdentityDeletedEvent {
	return IdentityDeletedEvent{
		BaseEvent:           NewBaseEvent(EventIdentityDeleted, identityID),
		Role:                role,
		DeletedMeasurements: deletedMeasurements,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
