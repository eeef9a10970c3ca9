package approval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/receiving/backend/internal/domain/approval"
	"github.com/receiving/backend/internal/domain/shared"
)

// DecideRequest carries one authorized approve/reject signal
type DecideRequest struct {
	DeliveryKey string `json:"delivery_key" binding:"required"`
	Actor       string `json:"actor" binding:"required"`
	Decision    string `json:"decision" binding:"required,oneof=approved rejected"`
	Reference   string `json:"reference"`
}

// AuditEntryResponse is the read model for one audit trail entry
type AuditEntryResponse struct {
	Actor      string    `json:"actor"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reference  string    `json:"reference,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ApprovalResponse is the read model for one approval. The download
// reference is only populated once the delivery is approved; sinks
// must not see it earlier.
type ApprovalResponse struct {
	ID                string               `json:"id"`
	DeliveryKey       string               `json:"delivery_key"`
	Status            string               `json:"status"`
	DecidedBy         string               `json:"decided_by,omitempty"`
	DecidedAt         *time.Time           `json:"decided_at,omitempty"`
	Reference         string               `json:"reference,omitempty"`
	Resolved          bool                 `json:"resolved"`
	Consumable        bool                 `json:"consumable"`
	DownloadReference string               `json:"download_reference,omitempty"`
	AuditTrail        []AuditEntryResponse `json:"audit_trail"`
}

// ApprovalService applies human decisions to published deliveries and
// serves the approval read models.
type ApprovalService struct {
	approvalRepo   approval.Repository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(approvalRepo approval.Repository, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		approvalRepo: approvalRepo,
		logger:       logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *ApprovalService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// Decide applies one decision to the delivery's approval. The first
// decision wins; repeat or conflicting signals are acknowledged no-ops
// returning the already resolved state.
func (s *ApprovalService) Decide(ctx context.Context, req DecideRequest) (*ApprovalResponse, error) {
	a, err := s.approvalRepo.FindByDeliveryKey(ctx, req.DeliveryKey)
	if err != nil {
		return nil, err
	}

	resolved, err := a.Decide(req.Actor, approval.Decision(req.Decision), req.Reference)
	if err != nil {
		return nil, err
	}

	if resolved {
		if err := s.approvalRepo.Save(ctx, a); err != nil {
			return nil, err
		}
		s.publishEvents(ctx, a)
		s.logger.Info("approval resolved",
			zap.String("delivery_key", a.DeliveryKey),
			zap.String("status", a.Status.String()),
			zap.String("actor", req.Actor),
		)
	} else {
		s.logger.Info("decision on already resolved approval ignored",
			zap.String("delivery_key", a.DeliveryKey),
			zap.String("status", a.Status.String()),
			zap.String("actor", req.Actor),
		)
	}

	resp := toApprovalResponse(a)
	return &resp, nil
}

// GetByDeliveryKey returns the approval for one delivery
func (s *ApprovalService) GetByDeliveryKey(ctx context.Context, deliveryKey string) (*ApprovalResponse, error) {
	a, err := s.approvalRepo.FindByDeliveryKey(ctx, deliveryKey)
	if err != nil {
		return nil, err
	}
	resp := toApprovalResponse(a)
	return &resp, nil
}

// publishEvents publishes pending domain events. Publish failures are
// logged, not returned: the state change has already been persisted.
func (s *ApprovalService) publishEvents(ctx context.Context, a *approval.Approval) {
	if s.eventPublisher == nil {
		a.ClearDomainEvents()
		return
	}
	events := a.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish approval events",
			zap.String("delivery_key", a.DeliveryKey),
			zap.Error(err),
		)
	}
	a.ClearDomainEvents()
}

func toApprovalResponse(a *approval.Approval) ApprovalResponse {
	trail := make([]AuditEntryResponse, len(a.AuditTrail))
	for i, entry := range a.AuditTrail {
		trail[i] = AuditEntryResponse{
			Actor:      entry.Actor,
			FromStatus: entry.FromStatus.String(),
			ToStatus:   entry.ToStatus.String(),
			Reference:  entry.Reference,
			CreatedAt:  entry.CreatedAt,
		}
	}
	resp := ApprovalResponse{
		ID:          a.ID.String(),
		DeliveryKey: a.DeliveryKey,
		Status:      a.Status.String(),
		DecidedBy:   a.DecidedBy,
		DecidedAt:   a.DecidedAt,
		Reference:   a.Reference,
		Resolved:    a.Status.IsTerminal(),
		Consumable:  a.IsConsumable(),
		AuditTrail:  trail,
	}
	if a.IsConsumable() {
		resp.DownloadReference = a.SourceReference()
	}
	return resp
}
