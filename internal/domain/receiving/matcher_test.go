package receiving

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoiceLine(name string, qty int) InvoiceLineItem {
	return InvoiceLineItem{ProductName: name, Quantity: qty, UnitCost: decimal.NewFromInt(10)}
}

func TestMatcher_NameMatch(t *testing.T) {
	m := NewMatcher(nil)

	items := []InvoiceLineItem{
		invoiceLine("Blue Dream 3.5g", 10),
		invoiceLine("Sour Diesel 1g", 24),
	}
	packages := []ManifestPackage{
		{PackageID: "1A01", ProductText: "SOUR DIESEL, 1G"},
		{PackageID: "1A02", ProductText: "Blue Dream 3.5g"},
	}

	result := m.Match(items, packages)
	require.Len(t, result.Pairs, 2)

	assert.Equal(t, "1A02", result.Pairs[0].Package.PackageID)
	assert.Equal(t, MatchMethodName, result.Pairs[0].Method)
	assert.Empty(t, result.Pairs[0].Flags)

	assert.Equal(t, "1A01", result.Pairs[1].Package.PackageID)
	assert.Empty(t, result.UnmatchedPackages)
}

func TestMatcher_PositionalFallback(t *testing.T) {
	m := NewMatcher(nil)

	items := []InvoiceLineItem{
		invoiceLine("Blue Dream 3.5g", 10),
		invoiceLine("Sour Diesel 1g", 24),
	}
	// Identifier-only manifest: no product text anywhere
	packages := []ManifestPackage{
		{PackageID: "1A01"},
		{PackageID: "1A02"},
	}

	result := m.Match(items, packages)
	require.Len(t, result.Pairs, 2)

	assert.Equal(t, "1A01", result.Pairs[0].Package.PackageID)
	assert.Equal(t, MatchMethodPositional, result.Pairs[0].Method)
	assert.Contains(t, result.Pairs[0].Flags, FlagPositionalMatch)
	assert.Equal(t, "1A02", result.Pairs[1].Package.PackageID)
}

func TestMatcher_UnmatchedInvoiceLineIsEmittedFlagged(t *testing.T) {
	m := NewMatcher(nil)

	items := []InvoiceLineItem{
		invoiceLine("Blue Dream 3.5g", 10),
		invoiceLine("Mystery Product", 5),
	}
	packages := []ManifestPackage{
		{PackageID: "1A01", ProductText: "Blue Dream 3.5g"},
	}

	result := m.Match(items, packages)
	require.Len(t, result.Pairs, 2)

	assert.Nil(t, result.Pairs[1].Package)
	assert.Equal(t, MatchMethodNone, result.Pairs[1].Method)
	assert.Contains(t, result.Pairs[1].Flags, FlagUnmatched)
}

func TestMatcher_DuplicatePackageIDsKeepFirst(t *testing.T) {
	m := NewMatcher(nil)

	items := []InvoiceLineItem{invoiceLine("Blue Dream 3.5g", 10)}
	packages := []ManifestPackage{
		{PackageID: "1A01", ProductText: "Blue Dream 3.5g", Quantity: 10},
		{PackageID: "1A01", ProductText: "Blue Dream 3.5g", Quantity: 99},
	}

	result := m.Match(items, packages)
	require.Len(t, result.Pairs, 1)
	require.NotNil(t, result.Pairs[0].Package)
	assert.Equal(t, 10, result.Pairs[0].Package.Quantity)
	assert.Contains(t, result.Pairs[0].Flags, FlagDuplicatePackage)
}

func TestMatcher_UnmatchedPackagesAreReportedNotEmitted(t *testing.T) {
	m := NewMatcher(nil)

	items := []InvoiceLineItem{invoiceLine("Blue Dream 3.5g", 10)}
	packages := []ManifestPackage{
		{PackageID: "1A01", ProductText: "Blue Dream 3.5g"},
		{PackageID: "1A02", ProductText: "Extra Package"},
	}

	result := m.Match(items, packages)
	require.Len(t, result.Pairs, 1)
	require.Len(t, result.UnmatchedPackages, 1)
	assert.Equal(t, "1A02", result.UnmatchedPackages[0].PackageID)
}

func TestMatcher_EmptyInvoiceProducesEmptyResult(t *testing.T) {
	m := NewMatcher(nil)
	result := m.Match(nil, []ManifestPackage{{PackageID: "1A01"}})
	assert.Empty(t, result.Pairs)
	assert.Empty(t, result.UnmatchedPackages)
}

func TestNormalizeProductName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Blue Dream 3.5g", "blue dream 3.5g"},
		{"  BLUE   DREAM, 3.5G!! ", "blue dream 3.5g"},
		{"Crème Brûlée 1g", "creme brulee 1g"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeProductName(tt.in), "input %q", tt.in)
	}
}
