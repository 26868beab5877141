package invoker

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// termSynonyms maps product-name fragments to canonical English search
// terms. Order matters: the first match wins.
var termSynonyms = []struct {
	trigger   string
	canonical string
}{
	{"vitamin c", "ascorbic acid"},
	{"비타민", "ascorbic acid"},
	{"ascorbic", "ascorbic acid"},
	{"세럼", "serum"},
}

// casNumbers maps product-name fragments to CAS registry numbers used
// for chemical database lookups.
var casNumbers = []struct {
	trigger string
	cas     string
}{
	{"vitamin c", "50-81-7"},
	{"비타민", "50-81-7"},
	{"ascorbic", "50-81-7"},
}

// SearchTerm derives an English search term from a product name.
// Known ingredients map to their canonical names; otherwise the name
// is folded to ASCII. A name with no ASCII content falls back to the
// generic term "chemical".
func SearchTerm(product string) string {
	lower := strings.ToLower(product)
	for _, m := range termSynonyms {
		if strings.Contains(lower, m.trigger) {
			return m.canonical
		}
	}
	if folded := foldASCII(product); folded != "" {
		return folded
	}
	return "chemical"
}

// CASNumber returns the CAS registry number for a known ingredient, or
// "" when the product is not recognized.
func CASNumber(product string) string {
	lower := strings.ToLower(product)
	for _, m := range casNumbers {
		if strings.Contains(lower, m.trigger) {
			return m.cas
		}
	}
	return ""
}

// foldASCII strips diacritics and drops non-ASCII runes, collapsing
// the remainder to single-spaced words.
func foldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range folded {
		if r < 128 {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
