package catalog

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/receiving/backend/internal/domain/catalog"
	csvimport "github.com/receiving/backend/internal/infrastructure/import"
)

// ImportResult reports what a catalog import did
type ImportResult struct {
	Vendor   string   `json:"vendor"`
	Imported int      `json:"imported"`
	Warnings []string `json:"warnings,omitempty"`
}

// EntryResponse is the read model for one catalog entry
type EntryResponse struct {
	Product   string    `json:"product"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CatalogService imports vendor catalogs from CSV and serves them.
// The uploaded CSV is the source of truth: every import replaces the
// vendor's catalog wholesale.
type CatalogService struct {
	catalogRepo catalog.Repository
	logger      *zap.Logger
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(catalogRepo catalog.Repository, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		catalogRepo: catalogRepo,
		logger:      logger,
	}
}

// ImportCSV parses a catalog CSV and replaces the vendor's catalog with
// its rows. Malformed rows are skipped and reported as warnings.
func (s *CatalogService) ImportCSV(ctx context.Context, vendor string, r io.Reader) (*ImportResult, error) {
	parsed, err := csvimport.ParseCatalogCSV(r, vendor)
	if err != nil {
		return nil, err
	}

	if err := s.catalogRepo.ReplaceVendorCatalog(ctx, vendor, parsed.Entries); err != nil {
		return nil, err
	}

	warnings := make([]string, 0, len(parsed.RowErrors))
	for _, rowErr := range parsed.RowErrors {
		warnings = append(warnings, rowErr.Error())
	}

	s.logger.Info("vendor catalog replaced",
		zap.String("vendor", vendor),
		zap.Int("entries", len(parsed.Entries)),
		zap.Int("skipped_rows", len(parsed.RowErrors)),
	)

	return &ImportResult{
		Vendor:   vendor,
		Imported: len(parsed.Entries),
		Warnings: warnings,
	}, nil
}

// GetVendorCatalog returns a vendor's catalog entries
func (s *CatalogService) GetVendorCatalog(ctx context.Context, vendor string) ([]EntryResponse, error) {
	entries, err := s.catalogRepo.FindByVendor(ctx, vendor)
	if err != nil {
		return nil, err
	}
	responses := make([]EntryResponse, len(entries))
	for i, entry := range entries {
		responses[i] = EntryResponse{
			Product:   entry.Product,
			UpdatedAt: entry.UpdatedAt,
		}
	}
	return responses, nil
}
