package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/receiving/backend/internal/domain/receiving"
)

// GormCanonicalRecordRepository implements CanonicalRecordRepository using GORM
type GormCanonicalRecordRepository struct {
	db *gorm.DB
}

// NewGormCanonicalRecordRepository creates a new GormCanonicalRecordRepository
func NewGormCanonicalRecordRepository(db *gorm.DB) *GormCanonicalRecordRepository {
	return &GormCanonicalRecordRepository{db: db}
}

// FindByDelivery returns the record set for one delivery in invoice order
func (r *GormCanonicalRecordRepository) FindByDelivery(ctx context.Context, deliveryID uuid.UUID) ([]receiving.CanonicalRecord, error) {
	var records []receiving.CanonicalRecord
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("position ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ReplaceForDelivery atomically swaps the record set for one delivery.
// A superseded run writes a fresh set in the same transaction that
// removes the stale one, so readers never see a mix of both runs.
func (r *GormCanonicalRecordRepository) ReplaceForDelivery(ctx context.Context, deliveryID uuid.UUID, records []receiving.CanonicalRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("delivery_id = ?", deliveryID).
			Delete(&receiving.CanonicalRecord{}).Error; err != nil {
			return err
		}
		for i := range records {
			records[i].DeliveryID = deliveryID
			if err := tx.Create(&records[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Ensure GormCanonicalRecordRepository implements CanonicalRecordRepository
var _ receiving.CanonicalRecordRepository = (*GormCanonicalRecordRepository)(nil)
