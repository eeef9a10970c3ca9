package receiving

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/receiving/backend/internal/domain/receiving"
)

// InvoiceLineRequest is one OCR-extracted invoice line
type InvoiceLineRequest struct {
	ProductName string          `json:"product_name" binding:"required"`
	Quantity    int             `json:"quantity" binding:"required"`
	UnitCost    decimal.Decimal `json:"unit_cost" binding:"required"`
}

// ManifestPackageRequest is one package row from a parsed manifest
type ManifestPackageRequest struct {
	PackageID      string `json:"package_id" binding:"required"`
	ProductText    string `json:"product_text"`
	Quantity       int    `json:"quantity"`
	ExpirationDate string `json:"expiration_date"` // YYYY-MM-DD, optional
}

// SubmitDocumentRequest records one parsed source document against a
// delivery key. Exactly one of lines/packages is read, per role.
type SubmitDocumentRequest struct {
	Store         string                   `json:"store" binding:"required"`
	Date          string                   `json:"date" binding:"required"`
	Vendor        string                   `json:"vendor" binding:"required"`
	InvoiceNumber string                   `json:"invoice_number" binding:"required"`
	Role          string                   `json:"role" binding:"required,oneof=INVOICE MANIFEST"`
	Lines         []InvoiceLineRequest     `json:"lines"`
	Packages      []ManifestPackageRequest `json:"packages"`
}

// SubmitDocumentResponse reports what a submission did
type SubmitDocumentResponse struct {
	DeliveryKey string   `json:"delivery_key"`
	Status      string   `json:"status"`
	Outcome     string   `json:"outcome"`
	Dropped     []string `json:"dropped,omitempty"`
	Complete    bool     `json:"complete"`
}

// DeliveryResponse is the read model for one delivery
type DeliveryResponse struct {
	ID                string     `json:"id"`
	DeliveryKey       string     `json:"delivery_key"`
	Store             string     `json:"store"`
	Date              string     `json:"date"`
	Vendor            string     `json:"vendor"`
	InvoiceNumber     string     `json:"invoice_number"`
	Status            string     `json:"status"`
	LastError         string     `json:"last_error,omitempty"`
	DownloadReference string     `json:"download_reference,omitempty"`
	JoinedAt          *time.Time `json:"joined_at,omitempty"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// RecordResponse is the read model for one canonical record
type RecordResponse struct {
	Position       int      `json:"position"`
	PackageID      string   `json:"package_id"`
	CatalogProduct string   `json:"catalog_product"`
	Room           string   `json:"room"`
	PricePerUnit   string   `json:"price_per_unit"`
	CostPerUnit    string   `json:"cost_per_unit"`
	Quantity       int      `json:"quantity"`
	ExpirationDate string   `json:"expiration_date,omitempty"`
	MatchMethod    string   `json:"match_method"`
	Flags          []string `json:"flags,omitempty"`
}

// ToDeliveryResponse converts a delivery aggregate to its read model
func ToDeliveryResponse(d *receiving.Delivery) DeliveryResponse {
	return DeliveryResponse{
		ID:                d.ID.String(),
		DeliveryKey:       d.KeyString,
		Store:             d.Store,
		Date:              d.DeliveryDate,
		Vendor:            d.Vendor,
		InvoiceNumber:     d.InvoiceNumber,
		Status:            d.Status.String(),
		LastError:         d.LastError,
		DownloadReference: d.DownloadReference,
		JoinedAt:          d.JoinedAt,
		PublishedAt:       d.PublishedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// ToRecordResponse converts a canonical record to its read model
func ToRecordResponse(r receiving.CanonicalRecord) RecordResponse {
	expDate := ""
	if r.ExpirationDate != nil {
		expDate = r.ExpirationDate.Format("2006-01-02")
	}
	return RecordResponse{
		Position:       r.Position,
		PackageID:      r.PackageID,
		CatalogProduct: r.CatalogProduct,
		Room:           r.Room,
		PricePerUnit:   r.PricePerUnit.String(),
		CostPerUnit:    r.CostPerUnit.String(),
		Quantity:       r.Quantity,
		ExpirationDate: expDate,
		MatchMethod:    r.MatchMethod,
		Flags:          r.FlagList(),
	}
}
