package csvimport

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/receiving/backend/internal/domain/catalog"
)

// Common import errors
var (
	// ErrEmptyFile is returned when the CSV file is empty
	ErrEmptyFile = errors.New("CSV file is empty")

	// ErrInvalidEncoding is returned when the file is not valid UTF-8
	ErrInvalidEncoding = errors.New("invalid file encoding")

	// ErrMissingHeader is returned when the CSV file has no header row
	ErrMissingHeader = errors.New("CSV file missing header row")

	// ErrNoDataRows is returned when the CSV file has no data rows
	ErrNoDataRows = errors.New("CSV file contains no data rows")
)

// catalog CSV column names
const (
	columnProduct = "Product"
)

// RowError represents an error in a specific row
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// CatalogImportResult carries the parsed entries plus per-row failures.
// A bad row never aborts the import; it is reported and skipped.
type CatalogImportResult struct {
	Entries   []catalog.Entry
	RowErrors []RowError
}

// ParseCatalogCSV parses a vendor catalog upload into catalog entries.
// The file must be UTF-8 (an optional BOM is stripped) and carry a
// header row with a Product column. Duplicate products keep the first
// occurrence.
func ParseCatalogCSV(r io.Reader, vendor string) (*CatalogImportResult, error) {
	buf := bufio.NewReader(r)

	// Detect and strip UTF-8 BOM
	head, err := buf.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	if err := validateUTF8(buf); err != nil {
		return nil, err
	}

	reader := csv.NewReader(buf)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	productIdx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), columnProduct) {
			productIdx = i
			break
		}
	}
	if productIdx < 0 {
		return nil, fmt.Errorf("%w: %s column is required", ErrMissingHeader, columnProduct)
	}

	result := &CatalogImportResult{}
	seen := make(map[string]bool)
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.RowErrors = append(result.RowErrors, RowError{Row: line, Message: err.Error()})
			continue
		}
		if productIdx >= len(record) {
			result.RowErrors = append(result.RowErrors, RowError{Row: line, Message: "missing Product value"})
			continue
		}

		product := strings.TrimSpace(record[productIdx])
		if product == "" {
			continue
		}

		norm := catalog.Normalize(product)
		if seen[norm] {
			continue
		}
		seen[norm] = true

		entry, err := catalog.NewEntry(vendor, product)
		if err != nil {
			result.RowErrors = append(result.RowErrors, RowError{Row: line, Message: err.Error()})
			continue
		}
		result.Entries = append(result.Entries, *entry)
	}

	if len(result.Entries) == 0 && len(result.RowErrors) == 0 {
		return nil, ErrNoDataRows
	}

	return result, nil
}

// validateUTF8 checks that the content is valid UTF-8
func validateUTF8(r *bufio.Reader) error {
	const checkSize = 4096
	content, err := r.Peek(checkSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read file for encoding validation: %w", err)
	}

	if len(content) == 0 {
		return ErrEmptyFile
	}

	if !utf8.Valid(content) {
		return ErrInvalidEncoding
	}

	return nil
}
