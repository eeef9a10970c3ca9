package approval

import (
	"github.com/google/uuid"
	"github.com/receiving/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeApproval = "Approval"

// Event type constants
const (
	EventTypeApprovalResolved = "ApprovalResolved"
)

// ApprovalResolvedEvent is raised when a pending approval is approved
// or rejected. Output sinks subscribe to it to learn when a delivery's
// records become consumable.
type ApprovalResolvedEvent struct {
	shared.BaseDomainEvent
	ApprovalID  uuid.UUID `json:"approval_id"`
	DeliveryID  uuid.UUID `json:"delivery_id"`
	DeliveryKey string    `json:"delivery_key"`
	Status      Status    `json:"status"`
	Actor       string    `json:"actor"`
	Reference   string    `json:"reference"`
}

// NewApprovalResolvedEvent creates a new ApprovalResolvedEvent
func NewApprovalResolvedEvent(a *Approval, actor string) *ApprovalResolvedEvent {
	return &ApprovalResolvedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeApprovalResolved, AggregateTypeApproval, a.ID),
		ApprovalID:      a.ID,
		DeliveryID:      a.DeliveryID,
		DeliveryKey:     a.DeliveryKey,
		Status:          a.Status,
		Actor:           actor,
		Reference:       a.Reference,
	}
}

// EventType returns the event type name
func (e *ApprovalResolvedEvent) EventType() string {
	return EventTypeApprovalResolved
}
