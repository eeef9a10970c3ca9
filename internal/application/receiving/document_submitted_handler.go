package receiving

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/receiving/backend/internal/domain/receiving"
	"github.com/receiving/backend/internal/domain/shared"
)

// DocumentSubmittedHandler triggers a reconciliation run whenever a
// submission completes a delivery. Runs for the same key coalesce on
// the run claim, so a burst of near-simultaneous submissions still
// produces exactly one run.
type DocumentSubmittedHandler struct {
	reconciliation *ReconciliationService
	logger         *zap.Logger
}

// NewDocumentSubmittedHandler creates a new DocumentSubmittedHandler
func NewDocumentSubmittedHandler(reconciliation *ReconciliationService, logger *zap.Logger) *DocumentSubmittedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentSubmittedHandler{
		reconciliation: reconciliation,
		logger:         logger,
	}
}

// Handle runs the completeness check for a submitted document
func (h *DocumentSubmittedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	submitted, ok := event.(*receiving.DocumentSubmittedEvent)
	if !ok {
		return nil
	}
	if !submitted.IsComplete {
		return nil
	}

	err := h.reconciliation.Reconcile(ctx, submitted.DeliveryKey)
	if errors.Is(err, shared.ErrRunConflict) {
		// Another run already holds the claim; coalesce onto it.
		h.logger.Debug("reconciliation already in progress",
			zap.String("delivery_key", submitted.DeliveryKey),
		)
		return nil
	}
	return err
}

// EventTypes returns the event types this handler subscribes to
func (h *DocumentSubmittedHandler) EventTypes() []string {
	return []string{receiving.EventTypeDocumentSubmitted}
}

// Ensure DocumentSubmittedHandler implements shared.EventHandler
var _ shared.EventHandler = (*DocumentSubmittedHandler)(nil)
