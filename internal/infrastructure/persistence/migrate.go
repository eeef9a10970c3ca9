package persistence

import (
	"gorm.io/gorm"

	"github.com/receiving/backend/internal/domain/approval"
	"github.com/receiving/backend/internal/domain/catalog"
	"github.com/receiving/backend/internal/domain/receiving"
)

// AutoMigrate creates or updates the schema for all persisted aggregates
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&receiving.Delivery{},
		&receiving.DocumentSubmission{},
		&receiving.InvoiceLineItem{},
		&receiving.ManifestPackage{},
		&receiving.CanonicalRecord{},
		&catalog.Entry{},
		&approval.Approval{},
		&approval.AuditEntry{},
	)
}
