package approval

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists approval aggregates and their audit trails.
// Audit entries are append-only and retained indefinitely.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Approval, error)
	FindByDelivery(ctx context.Context, deliveryID uuid.UUID) (*Approval, error)
	FindByDeliveryKey(ctx context.Context, deliveryKey string) (*Approval, error)
	// Save persists the aggregate with optimistic locking; concurrent
	// decisions on one delivery collapse to a single transition.
	Save(ctx context.Context, a *Approval) error
}
