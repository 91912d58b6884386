package parser

import (
	"strings"

	"golang.org/x/text/width"
)

// NormalizeTraderName folds full-width characters, collapses whitespace and lower-cases Latin
// letters, so the same desk scraped with different spacing aggregates under one name.
func NormalizeTraderName(name string) string {
	folded := width.Fold.String(name)
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}
