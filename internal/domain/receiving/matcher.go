package receiving

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchedPair pairs one invoice line with the manifest package chosen
// for it, or nothing when no package could be assigned. Output is
// invoice-driven: every invoice line produces exactly one pair.
type MatchedPair struct {
	Invoice InvoiceLineItem
	Package *ManifestPackage
	Method  string
	Flags   []string
}

// MatchResult is the full outcome of matching one delivery
type MatchResult struct {
	Pairs             []MatchedPair
	UnmatchedPackages []ManifestPackage
}

// Matcher pairs ordered invoice line items with ordered manifest
// packages for a single delivery.
type Matcher struct {
	logger *zap.Logger
}

// NewMatcher creates a matcher. A nil logger is replaced with a no-op.
func NewMatcher(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{logger: logger}
}

// Match pairs invoice items with manifest packages.
//
// Policy, in order:
//  1. Key match on normalized product/strain/size/format text when the
//     manifest rows carry product text.
//  2. Positional pairing by list index when the manifest is
//     identifier-only. This is a fragile heuristic; rows matched this
//     way are flagged so review can catch misalignment. A stronger
//     join key (catalog SKU or normalized product+size) should replace
//     it once manifests reliably carry one.
//  3. Invoice lines with no assignable package are emitted with an
//     empty package and flagged, never dropped.
//
// Duplicate package ids within one manifest keep the first occurrence;
// later occurrences are flagged and excluded. Unmatched manifest
// packages are logged but not emitted. An empty invoice produces an
// empty result, not an error.
func (m *Matcher) Match(invoiceItems []InvoiceLineItem, packages []ManifestPackage) MatchResult {
	result := MatchResult{
		Pairs:             make([]MatchedPair, 0, len(invoiceItems)),
		UnmatchedPackages: make([]ManifestPackage, 0),
	}
	if len(invoiceItems) == 0 {
		return result
	}

	packages, duplicateIDs := dedupePackages(packages)
	for _, id := range duplicateIDs {
		m.logger.Warn("duplicate package id in manifest, keeping first occurrence",
			zap.String("package_id", id),
		)
	}

	hasProductText := manifestCarriesText(packages)
	used := make([]bool, len(packages))

	for _, item := range invoiceItems {
		pair := MatchedPair{Invoice: item, Method: MatchMethodNone}

		if hasProductText {
			if idx := findByNormalizedName(item.ProductName, packages, used); idx >= 0 {
				pkg := packages[idx]
				used[idx] = true
				pair.Package = &pkg
				pair.Method = MatchMethodName
			}
		}

		if pair.Package == nil && !hasProductText {
			// Identifier-only manifest: fall back to list position.
			if idx := nextUnused(used); idx >= 0 && idx < len(packages) {
				pkg := packages[idx]
				used[idx] = true
				pair.Package = &pkg
				pair.Method = MatchMethodPositional
				pair.Flags = append(pair.Flags, FlagPositionalMatch)
			}
		}

		if pair.Package == nil {
			pair.Flags = append(pair.Flags, FlagUnmatched)
		}
		if dupFlagged(pair.Package, duplicateIDs) {
			pair.Flags = append(pair.Flags, FlagDuplicatePackage)
		}

		result.Pairs = append(result.Pairs, pair)
	}

	for idx, pkg := range packages {
		if !used[idx] {
			m.logger.Warn("manifest package not matched to any invoice line",
				zap.String("package_id", pkg.PackageID),
				zap.String("product_text", pkg.ProductText),
			)
			result.UnmatchedPackages = append(result.UnmatchedPackages, pkg)
		}
	}

	return result
}

// dedupePackages keeps the first occurrence of each package id and
// reports the ids that appeared more than once.
func dedupePackages(packages []ManifestPackage) ([]ManifestPackage, []string) {
	seen := make(map[string]bool, len(packages))
	deduped := make([]ManifestPackage, 0, len(packages))
	duplicates := make([]string, 0)
	for _, pkg := range packages {
		if seen[pkg.PackageID] {
			duplicates = append(duplicates, pkg.PackageID)
			continue
		}
		seen[pkg.PackageID] = true
		deduped = append(deduped, pkg)
	}
	return deduped, duplicates
}

// manifestCarriesText reports whether any manifest row has product text
func manifestCarriesText(packages []ManifestPackage) bool {
	for _, pkg := range packages {
		if strings.TrimSpace(pkg.ProductText) != "" {
			return true
		}
	}
	return false
}

// findByNormalizedName returns the index of the first unused package
// whose normalized product text equals the normalized invoice name, or
// -1 when none matches.
func findByNormalizedName(productName string, packages []ManifestPackage, used []bool) int {
	want := NormalizeProductName(productName)
	if want == "" {
		return -1
	}
	for idx, pkg := range packages {
		if used[idx] {
			continue
		}
		if NormalizeProductName(pkg.ProductText) == want {
			return idx
		}
	}
	return -1
}

// nextUnused returns the first unused index, or -1
func nextUnused(used []bool) int {
	for idx, u := range used {
		if !u {
			return idx
		}
	}
	return -1
}

func dupFlagged(pkg *ManifestPackage, duplicateIDs []string) bool {
	if pkg == nil {
		return false
	}
	for _, id := range duplicateIDs {
		if id == pkg.PackageID {
			return true
		}
	}
	return false
}

// nameNormalizer strips diacritics so OCR-mangled accents still match
var nameNormalizer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeProductName canonicalizes free-form product/strain/size text
// for matching: diacritics removed, lowercased, punctuation dropped,
// whitespace collapsed.
func NormalizeProductName(name string) string {
	stripped, _, err := transform.String(nameNormalizer, name)
	if err != nil {
		stripped = name
	}
	var b strings.Builder
	b.Grow(len(stripped))
	lastSpace := true
	for _, r := range strings.ToLower(stripped) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.':
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
