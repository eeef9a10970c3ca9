package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/receiving/backend/internal/domain/catalog"
)

// GormCatalogRepository implements catalog.Repository using GORM
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository creates a new GormCatalogRepository
func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

// FindByVendor returns a vendor's catalog entries
func (r *GormCatalogRepository) FindByVendor(ctx context.Context, vendor string) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	if err := r.db.WithContext(ctx).
		Where("vendor = ?", vendor).
		Order("product ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ReplaceVendorCatalog swaps a vendor's catalog wholesale
func (r *GormCatalogRepository) ReplaceVendorCatalog(ctx context.Context, vendor string, entries []catalog.Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("vendor = ?", vendor).
			Delete(&catalog.Entry{}).Error; err != nil {
			return err
		}
		for i := range entries {
			entries[i].Vendor = vendor
			if err := tx.Create(&entries[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Ensure GormCatalogRepository implements catalog.Repository
var _ catalog.Repository = (*GormCatalogRepository)(nil)
