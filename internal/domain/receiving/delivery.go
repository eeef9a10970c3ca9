package receiving

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/receiving/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DeliveryStatus represents the lifecycle status of a delivery
type DeliveryStatus string

const (
	DeliveryStatusCollecting  DeliveryStatus = "COLLECTING"
	DeliveryStatusReadyToJoin DeliveryStatus = "READY_TO_JOIN"
	DeliveryStatusJoined      DeliveryStatus = "JOINED"
	DeliveryStatusPublished   DeliveryStatus = "PUBLISHED"
)

// IsValid checks if the status is a valid DeliveryStatus
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusCollecting, DeliveryStatusReadyToJoin, DeliveryStatusJoined, DeliveryStatusPublished:
		return true
	}
	return false
}

// String returns the string representation of DeliveryStatus
func (s DeliveryStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s DeliveryStatus) CanTransitionTo(target DeliveryStatus) bool {
	switch s {
	case DeliveryStatusCollecting:
		return target == DeliveryStatusReadyToJoin
	case DeliveryStatusReadyToJoin:
		// A failed run reverts to COLLECTING for retry
		return target == DeliveryStatusJoined || target == DeliveryStatusCollecting
	case DeliveryStatusJoined:
		return target == DeliveryStatusPublished || target == DeliveryStatusCollecting
	case DeliveryStatusPublished:
		return false // Terminal
	}
	return false
}

// DocumentRole identifies which source document a submission came from
type DocumentRole string

const (
	DocumentRoleInvoice  DocumentRole = "INVOICE"
	DocumentRoleManifest DocumentRole = "MANIFEST"
)

// IsValid checks if the role is a valid DocumentRole
func (r DocumentRole) IsValid() bool {
	return r == DocumentRoleInvoice || r == DocumentRoleManifest
}

// DeliveryKey identifies one reconciliation unit: a single vendor
// shipment for one store on one date under one invoice number.
type DeliveryKey struct {
	Store         string
	Date          string // YYYY-MM-DD
	Vendor        string
	InvoiceNumber string
}

// NewDeliveryKey creates and validates a delivery key
func NewDeliveryKey(store, date, vendor, invoiceNumber string) (DeliveryKey, error) {
	key := DeliveryKey{
		Store:         strings.TrimSpace(store),
		Date:          strings.TrimSpace(date),
		Vendor:        strings.TrimSpace(vendor),
		InvoiceNumber: strings.TrimSpace(invoiceNumber),
	}
	if key.Store == "" || key.Vendor == "" || key.InvoiceNumber == "" {
		return DeliveryKey{}, shared.NewDomainError("INVALID_DELIVERY_KEY", "Store, vendor and invoice number are required")
	}
	if _, err := time.Parse("2006-01-02", key.Date); err != nil {
		return DeliveryKey{}, shared.NewDomainError("INVALID_DELIVERY_KEY", fmt.Sprintf("Delivery date %q must be YYYY-MM-DD", date))
	}
	return key, nil
}

// String returns the canonical form store/date/vendor/invoice with
// path-escaped segments so vendor names may contain slashes.
func (k DeliveryKey) String() string {
	segments := []string{k.Store, k.Date, k.Vendor, k.InvoiceNumber}
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}

// ParseDeliveryKey parses a canonical key string back into a DeliveryKey
func ParseDeliveryKey(s string) (DeliveryKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 4 {
		return DeliveryKey{}, shared.NewDomainError("INVALID_DELIVERY_KEY", fmt.Sprintf("Key %q must have 4 segments", s))
	}
	decoded := make([]string, 4)
	for i, p := range parts {
		d, err := url.PathUnescape(p)
		if err != nil {
			return DeliveryKey{}, shared.NewDomainError("INVALID_DELIVERY_KEY", fmt.Sprintf("Key segment %q is not path-escaped", p))
		}
		decoded[i] = d
	}
	return NewDeliveryKey(decoded[0], decoded[1], decoded[2], decoded[3])
}

// InvoiceLineItem is one priced line from a vendor invoice.
// Quantity is in sellable units, never cases.
type InvoiceLineItem struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	SubmissionID uuid.UUID       `gorm:"type:uuid;not null;index" json:"submission_id"`
	Position     int             `gorm:"not null" json:"position"`
	ProductName  string          `gorm:"type:varchar(300);not null" json:"product_name"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	UnitCost     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_cost"`
}

// TableName returns the table name for GORM
func (InvoiceLineItem) TableName() string {
	return "invoice_line_items"
}

// Validate checks the line item for malformed quantity or cost
func (i InvoiceLineItem) Validate() error {
	if strings.TrimSpace(i.ProductName) == "" {
		return shared.NewDomainError("INVALID_LINE_ITEM", "Product name cannot be empty")
	}
	if i.Quantity <= 0 {
		return shared.NewDomainError("INVALID_LINE_ITEM", fmt.Sprintf("Quantity for %q must be a positive unit count", i.ProductName))
	}
	if i.UnitCost.IsNegative() || i.UnitCost.IsZero() {
		return shared.NewDomainError("INVALID_LINE_ITEM", fmt.Sprintf("Unit cost for %q must be positive", i.ProductName))
	}
	return nil
}

// ManifestPackage is one package record from a state manifest
type ManifestPackage struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	SubmissionID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"submission_id"`
	Position       int        `gorm:"not null" json:"position"`
	PackageID      string     `gorm:"type:varchar(64);not null" json:"package_id"`
	ProductText    string     `gorm:"type:varchar(300)" json:"product_text"`
	Quantity       int        `gorm:"not null" json:"quantity"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// TableName returns the table name for GORM
func (ManifestPackage) TableName() string {
	return "manifest_packages"
}

// Validate checks the package id against the manifest id pattern
func (p ManifestPackage) Validate() error {
	if !IsValidPackageID(p.PackageID) {
		return shared.NewDomainError("INVALID_PACKAGE_ID", fmt.Sprintf("Package id %q must match 1A followed by alphanumerics", p.PackageID))
	}
	return nil
}

// IsValidPackageID reports whether the id matches the manifest-issued
// pattern "1A" followed by alphanumeric characters.
func IsValidPackageID(id string) bool {
	if len(id) < 3 || !strings.HasPrefix(id, "1A") {
		return false
	}
	for _, r := range id[2:] {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// DocumentSubmission is one parsed document (invoice or manifest)
// recorded against a delivery. Submissions are content-addressed so
// re-delivery of identical content is idempotent.
type DocumentSubmission struct {
	ID          uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	DeliveryID  uuid.UUID         `gorm:"type:uuid;not null;index" json:"delivery_id"`
	Role        DocumentRole      `gorm:"type:varchar(16);not null" json:"role"`
	ContentHash string            `gorm:"type:varchar(64);not null" json:"content_hash"`
	Revision    int               `gorm:"not null;default:1" json:"revision"`
	InvoiceRows []InvoiceLineItem `gorm:"foreignKey:SubmissionID;references:ID" json:"invoice_rows,omitempty"`
	Packages    []ManifestPackage `gorm:"foreignKey:SubmissionID;references:ID" json:"packages,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (DocumentSubmission) TableName() string {
	return "document_submissions"
}

// SubmitOutcome describes what a Submit call did
type SubmitOutcome string

const (
	SubmitOutcomeRecorded   SubmitOutcome = "RECORDED"
	SubmitOutcomeDuplicate  SubmitOutcome = "DUPLICATE"
	SubmitOutcomeSuperseded SubmitOutcome = "SUPERSEDED"
)

// Delivery is the aggregate root for one reconciliation unit. It
// accumulates document submissions until both roles are present, then
// moves through READY_TO_JOIN, JOINED and PUBLISHED exactly once per
// completeness transition.
type Delivery struct {
	shared.BaseAggregateRoot
	Store             string               `gorm:"type:varchar(100);not null"`
	DeliveryDate      string               `gorm:"type:varchar(10);not null"`
	Vendor            string               `gorm:"type:varchar(200);not null"`
	InvoiceNumber     string               `gorm:"type:varchar(100);not null"`
	KeyString         string               `gorm:"type:varchar(500);not null;uniqueIndex"`
	Status            DeliveryStatus       `gorm:"type:varchar(20);not null;default:'COLLECTING'"`
	Submissions       []DocumentSubmission `gorm:"foreignKey:DeliveryID;references:ID"`
	LastError         string               `gorm:"type:varchar(1000)"`
	DownloadReference string               `gorm:"type:varchar(1000)"`
	JoinedAt          *time.Time
	PublishedAt       *time.Time
}

// TableName returns the table name for GORM
func (Delivery) TableName() string {
	return "deliveries"
}

// NewDelivery creates a delivery in COLLECTING for the given key
func NewDelivery(key DeliveryKey) *Delivery {
	d := &Delivery{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Store:             key.Store,
		DeliveryDate:      key.Date,
		Vendor:            key.Vendor,
		InvoiceNumber:     key.InvoiceNumber,
		KeyString:         key.String(),
		Status:            DeliveryStatusCollecting,
		Submissions:       make([]DocumentSubmission, 0),
	}
	d.AddDomainEvent(NewDeliveryCreatedEvent(d))
	return d
}

// Key reconstructs the delivery key value object
func (d *Delivery) Key() DeliveryKey {
	return DeliveryKey{
		Store:         d.Store,
		Date:          d.DeliveryDate,
		Vendor:        d.Vendor,
		InvoiceNumber: d.InvoiceNumber,
	}
}

// SubmitInvoice records an invoice submission. Malformed line items are
// dropped individually; the dropped product names are returned so the
// caller can record warnings. Identical re-delivery is a no-op.
func (d *Delivery) SubmitInvoice(items []InvoiceLineItem) (SubmitOutcome, []string, error) {
	if d.Status == DeliveryStatusPublished {
		return "", nil, shared.NewDomainError("INVALID_STATE", "Cannot submit documents to a published delivery")
	}

	kept := make([]InvoiceLineItem, 0, len(items))
	dropped := make([]string, 0)
	for _, item := range items {
		if err := item.Validate(); err != nil {
			dropped = append(dropped, item.ProductName)
			continue
		}
		kept = append(kept, item)
	}

	hash := hashInvoiceItems(kept)
	outcome := d.recordSubmission(DocumentRoleInvoice, hash, func(sub *DocumentSubmission) {
		rows := make([]InvoiceLineItem, len(kept))
		for i, item := range kept {
			rows[i] = item
			rows[i].ID = uuid.New()
			rows[i].SubmissionID = sub.ID
			rows[i].Position = i
		}
		sub.InvoiceRows = rows
	})
	return outcome, dropped, nil
}

// SubmitManifest records a manifest submission. Packages with malformed
// ids are dropped individually and returned for warning. Identical
// re-delivery is a no-op.
func (d *Delivery) SubmitManifest(packages []ManifestPackage) (SubmitOutcome, []string, error) {
	if d.Status == DeliveryStatusPublished {
		return "", nil, shared.NewDomainError("INVALID_STATE", "Cannot submit documents to a published delivery")
	}

	kept := make([]ManifestPackage, 0, len(packages))
	dropped := make([]string, 0)
	for _, pkg := range packages {
		if err := pkg.Validate(); err != nil {
			dropped = append(dropped, pkg.PackageID)
			continue
		}
		kept = append(kept, pkg)
	}

	hash := hashManifestPackages(kept)
	outcome := d.recordSubmission(DocumentRoleManifest, hash, func(sub *DocumentSubmission) {
		rows := make([]ManifestPackage, len(kept))
		for i, pkg := range kept {
			rows[i] = pkg
			rows[i].ID = uuid.New()
			rows[i].SubmissionID = sub.ID
			rows[i].Position = i
		}
		sub.Packages = rows
	})
	return outcome, dropped, nil
}

// recordSubmission applies content-hash idempotency: identical content
// is a duplicate no-op, differing content for an existing role is a
// correction that supersedes the prior submission in place.
func (d *Delivery) recordSubmission(role DocumentRole, hash string, fill func(*DocumentSubmission)) SubmitOutcome {
	for idx := range d.Submissions {
		if d.Submissions[idx].Role != role {
			continue
		}
		if d.Submissions[idx].ContentHash == hash {
			return SubmitOutcomeDuplicate
		}
		// Corrected re-upload: supersede the prior content. Already
		// published records are never retracted; the new revision
		// feeds the next run only.
		revision := d.Submissions[idx].Revision + 1
		sub := DocumentSubmission{
			ID:          uuid.New(),
			DeliveryID:  d.ID,
			Role:        role,
			ContentHash: hash,
			Revision:    revision,
			CreatedAt:   time.Now(),
		}
		fill(&sub)
		d.Submissions[idx] = sub
		d.UpdatedAt = time.Now()
		d.IncrementVersion()
		// A superseding submission re-opens the delivery for a fresh run.
		if d.Status == DeliveryStatusReadyToJoin || d.Status == DeliveryStatusJoined {
			d.Status = DeliveryStatusCollecting
		}
		d.AddDomainEvent(NewDocumentSubmittedEvent(d, role, revision))
		return SubmitOutcomeSuperseded
	}

	sub := DocumentSubmission{
		ID:          uuid.New(),
		DeliveryID:  d.ID,
		Role:        role,
		ContentHash: hash,
		Revision:    1,
		CreatedAt:   time.Now(),
	}
	fill(&sub)
	d.Submissions = append(d.Submissions, sub)
	d.UpdatedAt = time.Now()
	d.IncrementVersion()
	d.AddDomainEvent(NewDocumentSubmittedEvent(d, role, 1))
	return SubmitOutcomeRecorded
}

// IsComplete reports whether at least one invoice and one manifest
// submission have been recorded for this delivery.
func (d *Delivery) IsComplete() bool {
	var hasInvoice, hasManifest bool
	for _, sub := range d.Submissions {
		switch sub.Role {
		case DocumentRoleInvoice:
			hasInvoice = true
		case DocumentRoleManifest:
			hasManifest = true
		}
	}
	return hasInvoice && hasManifest
}

// InvoiceItems returns the current invoice line items in arrival order
func (d *Delivery) InvoiceItems() []InvoiceLineItem {
	for _, sub := range d.Submissions {
		if sub.Role == DocumentRoleInvoice {
			rows := make([]InvoiceLineItem, len(sub.InvoiceRows))
			copy(rows, sub.InvoiceRows)
			sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
			return rows
		}
	}
	return nil
}

// ManifestPackages returns the current manifest packages in arrival order
func (d *Delivery) ManifestPackages() []ManifestPackage {
	for _, sub := range d.Submissions {
		if sub.Role == DocumentRoleManifest {
			rows := make([]ManifestPackage, len(sub.Packages))
			copy(rows, sub.Packages)
			sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
			return rows
		}
	}
	return nil
}

// MarkReadyToJoin fires the completeness transition. It succeeds only
// once per transition; callers racing on the same delivery coalesce on
// the run claim, not here.
func (d *Delivery) MarkReadyToJoin() error {
	if !d.IsComplete() {
		return shared.NewDomainError("INCOMPLETE_DELIVERY", "Both invoice and manifest must be present before joining")
	}
	if !d.Status.CanTransitionTo(DeliveryStatusReadyToJoin) {
		return shared.ErrInvalidState
	}
	d.Status = DeliveryStatusReadyToJoin
	d.LastError = ""
	d.UpdatedAt = time.Now()
	d.IncrementVersion()
	return nil
}

// MarkJoined records a successful reconciliation run
func (d *Delivery) MarkJoined(recordCount int) error {
	if !d.Status.CanTransitionTo(DeliveryStatusJoined) {
		return shared.ErrInvalidState
	}
	now := time.Now()
	d.Status = DeliveryStatusJoined
	d.JoinedAt = &now
	d.UpdatedAt = now
	d.IncrementVersion()
	d.AddDomainEvent(NewDeliveryJoinedEvent(d, recordCount))
	return nil
}

// MarkPublished records hand-off of the canonical records to staging
func (d *Delivery) MarkPublished(downloadReference string) error {
	if !d.Status.CanTransitionTo(DeliveryStatusPublished) {
		return shared.ErrInvalidState
	}
	now := time.Now()
	d.Status = DeliveryStatusPublished
	d.DownloadReference = downloadReference
	d.PublishedAt = &now
	d.UpdatedAt = now
	d.IncrementVersion()
	d.AddDomainEvent(NewDeliveryPublishedEvent(d, downloadReference))
	return nil
}

// RevertToCollecting puts a failed run back into COLLECTING with an
// error annotation so the delivery stays eligible for retry.
func (d *Delivery) RevertToCollecting(runErr error) {
	if d.Status == DeliveryStatusPublished {
		return
	}
	d.Status = DeliveryStatusCollecting
	if runErr != nil {
		d.LastError = runErr.Error()
	}
	d.UpdatedAt = time.Now()
	d.IncrementVersion()
}

// IsPublished returns true if the delivery reached its terminal state
func (d *Delivery) IsPublished() bool {
	return d.Status == DeliveryStatusPublished
}

// hashInvoiceItems produces a content hash independent of submission ids
func hashInvoiceItems(items []InvoiceLineItem) string {
	h := sha256.New()
	for _, item := range items {
		fmt.Fprintf(h, "%s|%d|%s\n", item.ProductName, item.Quantity, item.UnitCost.String())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// hashManifestPackages produces a content hash independent of submission ids
func hashManifestPackages(packages []ManifestPackage) string {
	h := sha256.New()
	for _, pkg := range packages {
		exp := ""
		if pkg.ExpirationDate != nil {
			exp = pkg.ExpirationDate.Format("2006-01-02")
		}
		fmt.Fprintf(h, "%s|%s|%d|%s\n", pkg.PackageID, pkg.ProductText, pkg.Quantity, exp)
	}
	return hex.EncodeToString(h.Sum(nil))
}
