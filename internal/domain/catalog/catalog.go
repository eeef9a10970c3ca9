package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/receiving/backend/internal/domain/shared"
)

// prefixLength bounds the normalized substring probe used for fuzzy
// catalog mapping. OCR output rarely reproduces a full product name
// verbatim, so the first 15 normalized characters are matched first.
const prefixLength = 15

// Entry is one canonical product name in a vendor's catalog
type Entry struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Vendor      string    `gorm:"type:varchar(200);not null;uniqueIndex:idx_catalog_vendor_product,priority:1" json:"vendor"`
	Product     string    `gorm:"type:varchar(300);not null;uniqueIndex:idx_catalog_vendor_product,priority:2" json:"product"`
	ProductNorm string    `gorm:"type:varchar(300);not null;index" json:"product_norm"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

// TableName returns the table name for GORM
func (Entry) TableName() string {
	return "catalog_entries"
}

// NewEntry creates a catalog entry scoped to one vendor
func NewEntry(vendor, product string) (*Entry, error) {
	vendor = strings.TrimSpace(vendor)
	product = strings.TrimSpace(product)
	if vendor == "" {
		return nil, shared.NewDomainError("INVALID_VENDOR", "Vendor cannot be empty")
	}
	if product == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product cannot be empty")
	}
	now := time.Now()
	return &Entry{
		ID:          uuid.New(),
		Vendor:      vendor,
		Product:     product,
		ProductNorm: Normalize(product),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Normalize lowercases and trims a product name for catalog matching
func Normalize(product string) string {
	return strings.ToLower(strings.TrimSpace(product))
}

// MapProduct maps a raw invoice product name onto a catalog Product
// value. Strategy: substring match on the first 15 normalized
// characters, then exact normalized match, else empty string so the
// gap is visible downstream.
func MapProduct(productName string, entries []Entry) string {
	norm := Normalize(productName)
	if norm == "" {
		return ""
	}

	prefix := norm
	if len(prefix) > prefixLength {
		prefix = prefix[:prefixLength]
	}
	for _, entry := range entries {
		if strings.Contains(entry.ProductNorm, prefix) {
			return entry.Product
		}
	}

	for _, entry := range entries {
		if entry.ProductNorm == norm {
			return entry.Product
		}
	}

	return ""
}

// Repository persists vendor catalogs
type Repository interface {
	FindByVendor(ctx context.Context, vendor string) ([]Entry, error)
	// ReplaceVendorCatalog swaps a vendor's catalog wholesale; the
	// catalog CSV is the source of truth and partial edits are not
	// supported.
	ReplaceVendorCatalog(ctx context.Context, vendor string, entries []Entry) error
}
