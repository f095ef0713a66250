package content

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeSlug folds a slug to the canonical form used for filter matching:
// NFKC, case folded and trimmed.
func NormalizeSlug(s string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFKC.String(s)))
}

func (f Filter) matches(slug string) bool {
	if f.Slug == "" {
		return true
	}
	return NormalizeSlug(f.Slug) == NormalizeSlug(slug)
}
