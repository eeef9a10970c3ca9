package receiving

import (
	"context"
	"fmt"
	"time"
)

// EnrichmentErrorClass classifies a failed registry lookup
type EnrichmentErrorClass string

const (
	EnrichmentErrorNotFound EnrichmentErrorClass = "not_found"
	EnrichmentErrorUpstream EnrichmentErrorClass = "upstream_error"
	EnrichmentErrorTimeout  EnrichmentErrorClass = "timeout"
)

// IsTransient reports whether a retry could plausibly succeed
func (c EnrichmentErrorClass) IsTransient() bool {
	return c == EnrichmentErrorUpstream || c == EnrichmentErrorTimeout
}

// EnrichmentError is a classified per-id lookup failure
type EnrichmentError struct {
	Class   EnrichmentErrorClass
	Message string
}

// Error implements the error interface
func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment %s: %s", e.Class, e.Message)
}

// PackageEnrichment is the registry's authoritative metadata for one
// package id. Partial results are valid: any field may be absent, and
// a failed lookup carries its classified error instead of data.
type PackageEnrichment struct {
	PackageID      string
	ExpirationDate *time.Time
	StrainName     string
	ProductName    string
	Quantity       *int
	UnitOfMeasure  string
	Err            *EnrichmentError
}

// EnrichmentClient looks package ids up against an external registry.
// Each id resolves independently; one id's failure never aborts the
// batch, so the returned map always has an entry per requested id.
type EnrichmentClient interface {
	Lookup(ctx context.Context, packageIDs []string) (map[string]PackageEnrichment, error)
}
