package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases text with Unicode case folding and strips combining marks.
// The transformers are built per call because they carry internal state.
func Fold(text string) string {
	if text == "" {
		return ""
	}
	chain := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(chain, text)
	if err != nil {
		stripped = text
	}
	return cases.Fold().String(stripped)
}

// CollapseSpace trims text and replaces runs of whitespace with one space.
func CollapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
