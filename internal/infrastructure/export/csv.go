package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/receiving/backend/internal/domain/receiving"
)

// Header is the canonical export column order. Downstream inventory
// tooling consumes these columns by name and position; do not reorder.
var Header = []string{
	"PackageID",
	"catalogProduct",
	"room",
	"PricePerUnit",
	"costPerUnit",
	"quantity",
	"expDate",
}

// dateLayout is the export date format (dates carry no time component)
const dateLayout = "2006-01-02"

// EncodeRecords renders reconciled records as the canonical CSV
// document. Records are written in the order given, which the caller
// keeps aligned with invoice order. Decimals are written as plain
// numbers and empty expiration dates as empty cells.
func EncodeRecords(records []receiving.CanonicalRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("failed to write export header: %w", err)
	}

	for _, r := range records {
		expDate := ""
		if r.ExpirationDate != nil {
			expDate = r.ExpirationDate.Format(dateLayout)
		}

		row := []string{
			r.PackageID,
			r.CatalogProduct,
			r.Room,
			r.PricePerUnit.String(),
			r.CostPerUnit.String(),
			strconv.Itoa(r.Quantity),
			expDate,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write export row %d: %w", r.Position, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}

	return buf.Bytes(), nil
}
