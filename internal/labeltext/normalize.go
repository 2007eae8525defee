// Package labeltext turns raw OCR output from an equipment label into RG and tag codes.
package labeltext

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks builds a fresh chain per call; chained transformers keep
// internal buffers and cannot be shared between goroutines.
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
}

// Normalize strips diacritics and carriage returns and uppercases the text.
// Line breaks are kept so the extractor can reason about label lines.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	out, _, err := transform.String(stripMarks(), raw)
	if err != nil {
		out = raw
	}
	out = strings.ReplaceAll(out, "\r", "")
	return strings.ToUpper(out)
}

// Compact collapses all whitespace into single spaces and truncates to limit runes.
func Compact(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if limit > 0 && len(r) > limit {
		return string(r[:limit])
	}
	return text
}
