package shared

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeSearch lowercases a term and strips diacritics so that names
// written with French accents or Arabic transliterations match either way.
// Repositories store the folded form in the search_name column.
func NormalizeSearch(term string) string {
	folded, _, err := transform.String(foldTransformer, term)
	if err != nil {
		folded = term
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
