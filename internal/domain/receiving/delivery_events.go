package receiving

import (
	"github.com/google/uuid"
	"github.com/receiving/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeDelivery = "Delivery"

// Event type constants
const (
	EventTypeDeliveryCreated   = "DeliveryCreated"
	EventTypeDocumentSubmitted = "DocumentSubmitted"
	EventTypeDeliveryJoined    = "DeliveryJoined"
	EventTypeDeliveryPublished = "DeliveryPublished"
)

// DeliveryCreatedEvent is raised when a delivery key is first seen
type DeliveryCreatedEvent struct {
	shared.BaseDomainEvent
	DeliveryID  uuid.UUID `json:"delivery_id"`
	DeliveryKey string    `json:"delivery_key"`
}

// NewDeliveryCreatedEvent creates a new DeliveryCreatedEvent
func NewDeliveryCreatedEvent(d *Delivery) *DeliveryCreatedEvent {
	return &DeliveryCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDeliveryCreated, AggregateTypeDelivery, d.ID),
		DeliveryID:      d.ID,
		DeliveryKey:     d.KeyString,
	}
}

// EventType returns the event type name
func (e *DeliveryCreatedEvent) EventType() string {
	return EventTypeDeliveryCreated
}

// DocumentSubmittedEvent is raised whenever a parsed document lands on
// a delivery. Handlers use it to run the completeness check.
type DocumentSubmittedEvent struct {
	shared.BaseDomainEvent
	DeliveryID  uuid.UUID    `json:"delivery_id"`
	DeliveryKey string       `json:"delivery_key"`
	Role        DocumentRole `json:"role"`
	Revision    int          `json:"revision"`
	IsComplete  bool         `json:"is_complete"`
}

// NewDocumentSubmittedEvent creates a new DocumentSubmittedEvent
func NewDocumentSubmittedEvent(d *Delivery, role DocumentRole, revision int) *DocumentSubmittedEvent {
	return &DocumentSubmittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentSubmitted, AggregateTypeDelivery, d.ID),
		DeliveryID:      d.ID,
		DeliveryKey:     d.KeyString,
		Role:            role,
		Revision:        revision,
		IsComplete:      d.IsComplete(),
	}
}

// EventType returns the event type name
func (e *DocumentSubmittedEvent) EventType() string {
	return EventTypeDocumentSubmitted
}

// DeliveryJoinedEvent is raised when a reconciliation run completes
type DeliveryJoinedEvent struct {
	shared.BaseDomainEvent
	DeliveryID  uuid.UUID `json:"delivery_id"`
	DeliveryKey string    `json:"delivery_key"`
	RecordCount int       `json:"record_count"`
}

// NewDeliveryJoinedEvent creates a new DeliveryJoinedEvent
func NewDeliveryJoinedEvent(d *Delivery, recordCount int) *DeliveryJoinedEvent {
	return &DeliveryJoinedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDeliveryJoined, AggregateTypeDelivery, d.ID),
		DeliveryID:      d.ID,
		DeliveryKey:     d.KeyString,
		RecordCount:     recordCount,
	}
}

// EventType returns the event type name
func (e *DeliveryJoinedEvent) EventType() string {
	return EventTypeDeliveryJoined
}

// DeliveryPublishedEvent carries the notification payload for a
// published delivery: the key and where the canonical CSV can be
// downloaded from.
type DeliveryPublishedEvent struct {
	shared.BaseDomainEvent
	DeliveryID        uuid.UUID `json:"delivery_id"`
	DeliveryKey       string    `json:"delivery_key"`
	DownloadReference string    `json:"download_reference"`
}

// NewDeliveryPublishedEvent creates a new DeliveryPublishedEvent
func NewDeliveryPublishedEvent(d *Delivery, downloadReference string) *DeliveryPublishedEvent {
	return &DeliveryPublishedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeDeliveryPublished, AggregateTypeDelivery, d.ID),
		DeliveryID:        d.ID,
		DeliveryKey:       d.KeyString,
		DownloadReference: downloadReference,
	}
}

// EventType returns the event type name
func (e *DeliveryPublishedEvent) EventType() string {
	return EventTypeDeliveryPublished
}
