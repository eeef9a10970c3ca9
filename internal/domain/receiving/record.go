package receiving

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RoomReceiving is the constant room every canonical record lands in
const RoomReceiving = "Receiving Room"

// Match method constants carried onto records so review can see how
// identity was assigned.
const (
	MatchMethodName       = "name"
	MatchMethodPositional = "positional"
	MatchMethodNone       = "none"
)

// Record flags surfaced to downstream review
const (
	FlagUnmatched        = "unmatched"
	FlagPositionalMatch  = "positional_match"
	FlagDuplicatePackage = "duplicate_package"
	FlagEnrichmentFailed = "enrichment_failed"
)

// markupDivisor and retailMultiplier derive the shelf price from the
// wholesale unit cost: price = (cost / 0.8) * 2.
var (
	markupDivisor    = decimal.NewFromFloat(0.8)
	retailMultiplier = decimal.NewFromInt(2)
)

// PricePerUnit derives the shelf price from a unit cost. The price is
// always computed, never supplied by a source document.
func PricePerUnit(costPerUnit decimal.Decimal) decimal.Decimal {
	return costPerUnit.Div(markupDivisor).Mul(retailMultiplier)
}

// CanonicalRecord is one reconciled receiving row. Quantity and cost
// come from the invoice; package identity and expiration date come
// from the manifest (or enrichment). Order mirrors invoice order.
type CanonicalRecord struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	DeliveryID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"delivery_id"`
	Position       int             `gorm:"not null" json:"position"`
	PackageID      string          `gorm:"type:varchar(64)" json:"package_id"`
	CatalogProduct string          `gorm:"type:varchar(300)" json:"catalog_product"`
	Room           string          `gorm:"type:varchar(50);not null" json:"room"`
	PricePerUnit   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"price_per_unit"`
	CostPerUnit    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"cost_per_unit"`
	Quantity       int             `gorm:"not null" json:"quantity"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	MatchMethod    string          `gorm:"type:varchar(16);not null" json:"match_method"`
	Flags          string          `gorm:"type:varchar(300)" json:"flags"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (CanonicalRecord) TableName() string {
	return "canonical_records"
}

// NewCanonicalRecord builds a record from an invoice line and whatever
// identity information matching and enrichment produced. An empty
// packageID is allowed: unmatchable lines stay visible downstream
// instead of vanishing.
func NewCanonicalRecord(deliveryID uuid.UUID, position int, item InvoiceLineItem, packageID, catalogProduct string, expiration *time.Time, matchMethod string, flags []string) CanonicalRecord {
	return CanonicalRecord{
		ID:             uuid.New(),
		DeliveryID:     deliveryID,
		Position:       position,
		PackageID:      packageID,
		CatalogProduct: catalogProduct,
		Room:           RoomReceiving,
		PricePerUnit:   PricePerUnit(item.UnitCost),
		CostPerUnit:    item.UnitCost,
		Quantity:       item.Quantity,
		ExpirationDate: expiration,
		MatchMethod:    matchMethod,
		Flags:          joinFlags(flags),
		CreatedAt:      time.Now(),
	}
}

// FlagList splits the stored flag string back into individual flags
func (r CanonicalRecord) FlagList() []string {
	if r.Flags == "" {
		return nil
	}
	return strings.Split(r.Flags, ",")
}

func joinFlags(flags []string) string {
	return strings.Join(flags, ",")
}
