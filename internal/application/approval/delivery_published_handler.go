package approval

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/receiving/backend/internal/domain/approval"
	"github.com/receiving/backend/internal/domain/receiving"
	"github.com/receiving/backend/internal/domain/shared"
)

// DeliveryPublishedHandler opens a pending approval for every freshly
// published delivery. Re-publication of the same delivery keeps the
// existing approval.
type DeliveryPublishedHandler struct {
	approvalRepo approval.Repository
	logger       *zap.Logger
}

// NewDeliveryPublishedHandler creates a new DeliveryPublishedHandler
func NewDeliveryPublishedHandler(approvalRepo approval.Repository, logger *zap.Logger) *DeliveryPublishedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryPublishedHandler{
		approvalRepo: approvalRepo,
		logger:       logger,
	}
}

// Handle opens the approval gate for a published delivery
func (h *DeliveryPublishedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	published, ok := event.(*receiving.DeliveryPublishedEvent)
	if !ok {
		return nil
	}

	existing, err := h.approvalRepo.FindByDelivery(ctx, published.DeliveryID)
	if err == nil && existing != nil {
		return nil
	}
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	a, err := approval.NewApproval(published.DeliveryID, published.DeliveryKey, published.DownloadReference)
	if err != nil {
		return err
	}
	if err := h.approvalRepo.Save(ctx, a); err != nil {
		return err
	}

	h.logger.Info("approval opened for published delivery",
		zap.String("delivery_key", published.DeliveryKey),
	)
	return nil
}

// EventTypes returns the event types this handler subscribes to
func (h *DeliveryPublishedHandler) EventTypes() []string {
	return []string{receiving.EventTypeDeliveryPublished}
}

// Ensure DeliveryPublishedHandler implements shared.EventHandler
var _ shared.EventHandler = (*DeliveryPublishedHandler)(nil)
