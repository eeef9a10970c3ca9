package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/receiving/backend/internal/domain/receiving"
	"github.com/receiving/backend/internal/domain/shared"
)

// deliverySortFields whitelists sortable columns to prevent SQL injection
var deliverySortFields = map[string]string{
	"created_at":    "created_at",
	"updated_at":    "updated_at",
	"delivery_date": "delivery_date",
	"vendor":        "vendor",
	"status":        "status",
}

// GormDeliveryRepository implements DeliveryRepository using GORM
type GormDeliveryRepository struct {
	db *gorm.DB
}

// NewGormDeliveryRepository creates a new GormDeliveryRepository
func NewGormDeliveryRepository(db *gorm.DB) *GormDeliveryRepository {
	return &GormDeliveryRepository{db: db}
}

// FindByID finds a delivery by its ID
func (r *GormDeliveryRepository) FindByID(ctx context.Context, id uuid.UUID) (*receiving.Delivery, error) {
	var delivery receiving.Delivery
	if err := r.db.WithContext(ctx).
		Preload("Submissions").
		Preload("Submissions.InvoiceRows").
		Preload("Submissions.Packages").
		First(&delivery, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	delivery.SyncStoredVersion()
	return &delivery, nil
}

// FindByKey finds a delivery by its canonical key string
func (r *GormDeliveryRepository) FindByKey(ctx context.Context, key string) (*receiving.Delivery, error) {
	var delivery receiving.Delivery
	if err := r.db.WithContext(ctx).
		Preload("Submissions").
		Preload("Submissions.InvoiceRows").
		Preload("Submissions.Packages").
		Where("key_string = ?", key).
		First(&delivery).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	delivery.SyncStoredVersion()
	return &delivery, nil
}

// FindAll finds deliveries with filtering
func (r *GormDeliveryRepository) FindAll(ctx context.Context, filter shared.Filter) ([]receiving.Delivery, error) {
	var deliveries []receiving.Delivery
	query := r.db.WithContext(ctx).Model(&receiving.Delivery{})
	query = r.applyFilter(query, filter)
	if err := query.Find(&deliveries).Error; err != nil {
		return nil, err
	}
	return deliveries, nil
}

// FindByStatus finds deliveries by status with filtering
func (r *GormDeliveryRepository) FindByStatus(ctx context.Context, status receiving.DeliveryStatus, filter shared.Filter) ([]receiving.Delivery, error) {
	var deliveries []receiving.Delivery
	query := r.db.WithContext(ctx).Model(&receiving.Delivery{}).Where("status = ?", status)
	query = r.applyFilter(query, filter)
	if err := query.Find(&deliveries).Error; err != nil {
		return nil, err
	}
	return deliveries, nil
}

// Save creates or updates a delivery with optimistic locking.
// The row update requires the stored version to equal the version this
// aggregate was loaded at; any writer that persisted in between raises
// ErrConcurrencyConflict, no matter how many local mutations the stale
// copy has accumulated.
func (r *GormDeliveryRepository) Save(ctx context.Context, delivery *receiving.Delivery) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&receiving.Delivery{}).
			Where("id = ?", delivery.ID).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			return tx.Create(delivery).Error
		}

		delivery.UpdatedAt = time.Now()
		result := tx.Model(&receiving.Delivery{}).
			Where("id = ? AND version = ?", delivery.ID, delivery.StoredVersion()).
			Updates(map[string]interface{}{
				"status":             delivery.Status,
				"last_error":         delivery.LastError,
				"download_reference": delivery.DownloadReference,
				"joined_at":          delivery.JoinedAt,
				"published_at":       delivery.PublishedAt,
				"version":            delivery.Version,
				"updated_at":         delivery.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		// Submissions are replaced wholesale: a superseding upload swaps
		// one role's content, so diffing buys nothing here.
		var subIDs []uuid.UUID
		if err := tx.Model(&receiving.DocumentSubmission{}).
			Where("delivery_id = ?", delivery.ID).
			Pluck("id", &subIDs).Error; err != nil {
			return err
		}
		if len(subIDs) > 0 {
			if err := tx.Where("submission_id IN ?", subIDs).Delete(&receiving.InvoiceLineItem{}).Error; err != nil {
				return err
			}
			if err := tx.Where("submission_id IN ?", subIDs).Delete(&receiving.ManifestPackage{}).Error; err != nil {
				return err
			}
			if err := tx.Where("delivery_id = ?", delivery.ID).Delete(&receiving.DocumentSubmission{}).Error; err != nil {
				return err
			}
		}

		for i := range delivery.Submissions {
			delivery.Submissions[i].DeliveryID = delivery.ID
			if err := tx.Create(&delivery.Submissions[i]).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}
	delivery.SyncStoredVersion()
	return nil
}

// applyFilter applies filter options to the query
func (r *GormDeliveryRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "store":
			query = query.Where("store = ?", value)
		case "vendor":
			query = query.Where("vendor = ?", value)
		case "delivery_date":
			query = query.Where("delivery_date = ?", value)
		}
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if col, ok := deliverySortFields[filter.OrderBy]; ok {
		dir := "ASC"
		if filter.OrderDir == "desc" || filter.OrderDir == "DESC" {
			dir = "DESC"
		}
		query = query.Order(col + " " + dir)
	} else {
		query = query.Order("created_at DESC")
	}

	return query
}

// Ensure GormDeliveryRepository implements DeliveryRepository
var _ receiving.DeliveryRepository = (*GormDeliveryRepository)(nil)
