package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/receiving/backend/internal/domain/approval"
	"github.com/receiving/backend/internal/domain/shared"
)

// GormApprovalRepository implements approval.Repository using GORM
type GormApprovalRepository struct {
	db *gorm.DB
}

// NewGormApprovalRepository creates a new GormApprovalRepository
func NewGormApprovalRepository(db *gorm.DB) *GormApprovalRepository {
	return &GormApprovalRepository{db: db}
}

// FindByID finds an approval by its ID
func (r *GormApprovalRepository) FindByID(ctx context.Context, id uuid.UUID) (*approval.Approval, error) {
	var a approval.Approval
	if err := r.db.WithContext(ctx).
		Preload("AuditTrail").
		First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	a.SyncStoredVersion()
	return &a, nil
}

// FindByDelivery finds the approval gating one delivery
func (r *GormApprovalRepository) FindByDelivery(ctx context.Context, deliveryID uuid.UUID) (*approval.Approval, error) {
	var a approval.Approval
	if err := r.db.WithContext(ctx).
		Preload("AuditTrail").
		Where("delivery_id = ?", deliveryID).
		First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	a.SyncStoredVersion()
	return &a, nil
}

// FindByDeliveryKey finds the approval by the delivery's canonical key
func (r *GormApprovalRepository) FindByDeliveryKey(ctx context.Context, deliveryKey string) (*approval.Approval, error) {
	var a approval.Approval
	if err := r.db.WithContext(ctx).
		Preload("AuditTrail").
		Where("delivery_key = ?", deliveryKey).
		First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	a.SyncStoredVersion()
	return &a, nil
}

// Save creates or updates an approval with optimistic locking. The row
// update requires the stored version to equal the version the aggregate
// was loaded at. Audit entries are append-only: existing rows are never
// touched, only entries missing from the table are inserted.
func (r *GormApprovalRepository) Save(ctx context.Context, a *approval.Approval) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&approval.Approval{}).
			Where("id = ?", a.ID).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			return tx.Create(a).Error
		}

		a.UpdatedAt = time.Now()
		result := tx.Model(&approval.Approval{}).
			Where("id = ? AND version = ?", a.ID, a.StoredVersion()).
			Updates(map[string]interface{}{
				"status":     a.Status,
				"decided_by": a.DecidedBy,
				"decided_at": a.DecidedAt,
				"reference":  a.Reference,
				"version":    a.Version,
				"updated_at": a.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		var existingIDs []uuid.UUID
		if err := tx.Model(&approval.AuditEntry{}).
			Where("approval_id = ?", a.ID).
			Pluck("id", &existingIDs).Error; err != nil {
			return err
		}
		existing := make(map[uuid.UUID]bool, len(existingIDs))
		for _, id := range existingIDs {
			existing[id] = true
		}

		for i := range a.AuditTrail {
			if existing[a.AuditTrail[i].ID] {
				continue
			}
			a.AuditTrail[i].ApprovalID = a.ID
			if err := tx.Create(&a.AuditTrail[i]).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}
	a.SyncStoredVersion()
	return nil
}

// Ensure GormApprovalRepository implements approval.Repository
var _ approval.Repository = (*GormApprovalRepository)(nil)
