package receiving

import (
	"context"

	"github.com/google/uuid"
	"github.com/receiving/backend/internal/domain/shared"
)

// DeliveryRepository persists delivery aggregates
type DeliveryRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Delivery, error)
	FindByKey(ctx context.Context, key string) (*Delivery, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Delivery, error)
	FindByStatus(ctx context.Context, status DeliveryStatus, filter shared.Filter) ([]Delivery, error)
	// Save persists the aggregate with optimistic locking on the
	// version column; a stale version returns ErrConcurrencyConflict.
	Save(ctx context.Context, delivery *Delivery) error
}

// CanonicalRecordRepository persists reconciled records. Records are
// retained indefinitely; there is deliberately no delete operation.
type CanonicalRecordRepository interface {
	FindByDelivery(ctx context.Context, deliveryID uuid.UUID) ([]CanonicalRecord, error)
	// ReplaceForDelivery atomically swaps the record set for one
	// delivery run. Superseded runs write a fresh set; approved
	// record sets are immutable and must not be replaced.
	ReplaceForDelivery(ctx context.Context, deliveryID uuid.UUID, records []CanonicalRecord) error
}
