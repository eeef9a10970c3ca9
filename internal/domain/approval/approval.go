package approval

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/receiving/backend/internal/domain/shared"
)

// Status represents the approval status of a published delivery
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true once the approval has been resolved
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision is an authorized approve/reject signal
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// IsValid checks if the decision is a valid Decision
func (d Decision) IsValid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Status returns the terminal status the decision resolves to
func (d Decision) Status() Status {
	if d == DecisionApproved {
		return StatusApproved
	}
	return StatusRejected
}

// AuditEntry is one immutable line in the approval audit trail.
// Entries are append-only; nothing ever updates or deletes one.
type AuditEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ApprovalID uuid.UUID `gorm:"type:uuid;not null;index" json:"approval_id"`
	Actor      string    `gorm:"type:varchar(200);not null" json:"actor"`
	FromStatus Status    `gorm:"type:varchar(16);not null" json:"from_status"`
	ToStatus   Status    `gorm:"type:varchar(16);not null" json:"to_status"`
	Reference  string    `gorm:"type:varchar(500)" json:"reference"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (AuditEntry) TableName() string {
	return "approval_audit_entries"
}

// Approval gates downstream consumption of one published delivery.
// It resolves exactly once; repeat signals are no-ops that return the
// existing state.
type Approval struct {
	shared.BaseAggregateRoot
	DeliveryID  uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	DeliveryKey string       `gorm:"type:varchar(500);not null;index"`
	Status      Status       `gorm:"type:varchar(16);not null;default:'PENDING'"`
	DecidedBy   string       `gorm:"type:varchar(200)"`
	DecidedAt   *time.Time   `gorm:""`
	Reference   string       `gorm:"type:varchar(500)"`
	AuditTrail  []AuditEntry `gorm:"foreignKey:ApprovalID;references:ID"`
}

// TableName returns the table name for GORM
func (Approval) TableName() string {
	return "approvals"
}

// NewApproval opens a pending approval for a freshly published
// delivery. The publication itself is the first audit entry.
func NewApproval(deliveryID uuid.UUID, deliveryKey, sourceReference string) (*Approval, error) {
	if deliveryID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_DELIVERY", "Delivery ID cannot be empty")
	}
	if deliveryKey == "" {
		return nil, shared.NewDomainError("INVALID_DELIVERY", "Delivery key cannot be empty")
	}

	a := &Approval{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		DeliveryID:        deliveryID,
		DeliveryKey:       deliveryKey,
		Status:            StatusPending,
		AuditTrail:        make([]AuditEntry, 0, 2),
	}
	a.appendAudit("system", StatusPending, StatusPending, sourceReference)
	return a, nil
}

// Decide applies one authorized decision. The first decision resolves
// the approval and appends an audit entry; any signal on an already
// resolved approval is a no-op and reports resolved=false.
func (a *Approval) Decide(actor string, decision Decision, reference string) (bool, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return false, shared.NewDomainError("INVALID_ACTOR", "Approver identity is required")
	}
	if !decision.IsValid() {
		return false, shared.NewDomainError("INVALID_DECISION", "Decision must be approved or rejected")
	}
	if a.Status.IsTerminal() {
		// Repeat or conflicting signal on a resolved delivery.
		return false, nil
	}

	from := a.Status
	now := time.Now()
	a.Status = decision.Status()
	a.DecidedBy = actor
	a.DecidedAt = &now
	a.Reference = reference
	a.UpdatedAt = now
	a.IncrementVersion()
	a.appendAudit(actor, from, a.Status, reference)
	a.AddDomainEvent(NewApprovalResolvedEvent(a, actor))
	return true, nil
}

// IsConsumable reports whether downstream sinks may consume the
// delivery's records. Only APPROVED opens the gate.
func (a *Approval) IsConsumable() bool {
	return a.Status == StatusApproved
}

// SourceReference returns the download reference recorded when the
// approval was opened (the publication audit entry).
func (a *Approval) SourceReference() string {
	if len(a.AuditTrail) == 0 {
		return ""
	}
	return a.AuditTrail[0].Reference
}

func (a *Approval) appendAudit(actor string, from, to Status, reference string) {
	a.AuditTrail = append(a.AuditTrail, AuditEntry{
		ID:         uuid.New(),
		ApprovalID: a.ID,
		Actor:      actor,
		FromStatus: from,
		ToStatus:   to,
		Reference:  reference,
		CreatedAt:  time.Now(),
	})
}
