package csvimport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalogCSV_Basic(t *testing.T) {
	input := "Product,Category\nBlue Dream Flower 3.5g,Flower\nSour Diesel 1g Preroll,Preroll\n"

	result, err := ParseCatalogCSV(strings.NewReader(input), "Green Fields")
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Empty(t, result.RowErrors)

	assert.Equal(t, "Blue Dream Flower 3.5g", result.Entries[0].Product)
	assert.Equal(t, "Green Fields", result.Entries[0].Vendor)
	assert.Equal(t, "Sour Diesel 1g Preroll", result.Entries[1].Product)
}

func TestParseCatalogCSV_StripsBOM(t *testing.T) {
	input := "\xEF\xBB\xBFProduct\nBlue Dream Flower 3.5g\n"

	result, err := ParseCatalogCSV(strings.NewReader(input), "Green Fields")
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
}

func TestParseCatalogCSV_HeaderIsCaseInsensitive(t *testing.T) {
	input := "product\nBlue Dream Flower 3.5g\n"

	result, err := ParseCatalogCSV(strings.NewReader(input), "Green Fields")
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
}

func TestParseCatalogCSV_MissingProductColumn(t *testing.T) {
	input := "Name,Category\nBlue Dream,Flower\n"

	_, err := ParseCatalogCSV(strings.NewReader(input), "Green Fields")
	assert.ErrorIs(t, err, ErrMissingHeader)
}

func TestParseCatalogCSV_EmptyFile(t *testing.T) {
	_, err := ParseCatalogCSV(strings.NewReader(""), "Green Fields")
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestParseCatalogCSV_HeaderOnly(t *testing.T) {
	_, err := ParseCatalogCSV(strings.NewReader("Product\n"), "Green Fields")
	assert.ErrorIs(t, err, ErrNoDataRows)
}

func TestParseCatalogCSV_DedupesByNormalizedProduct(t *testing.T) {
	input := "Product\nBlue Dream Flower 3.5g\nBLUE DREAM FLOWER 3.5G\nSour Diesel 1g\n"

	result, err := ParseCatalogCSV(strings.NewReader(input), "Green Fields")
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "Blue Dream Flower 3.5g", result.Entries[0].Product)
}

func TestParseCatalogCSV_SkipsBlankProductCells(t *testing.T) {
	input := "Product,Category\n,Flower\nBlue Dream Flower 3.5g,Flower\n"

	result, err := ParseCatalogCSV(strings.NewReader(input), "Green Fields")
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Empty(t, result.RowErrors)
}

func TestParseCatalogCSV_ShortRowReported(t *testing.T) {
	input := "Category,Product\nFlower\nFlower,Blue Dream Flower 3.5g\n"

	result, err := ParseCatalogCSV(strings.NewReader(input), "Green Fields")
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	require.Len(t, result.RowErrors, 1)
	assert.Equal(t, 2, result.RowErrors[0].Row)
}

func TestParseCatalogCSV_InvalidEncoding(t *testing.T) {
	_, err := ParseCatalogCSV(strings.NewReader("Product\n\xff\xfe bad\n"), "Green Fields")
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}
