// Package textutil provides accent-insensitive text folding for search.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritical marks, so that "Việt" folds to
// "viet". The Vietnamese đ/Đ carry no combining mark and are mapped by hand.
func Fold(s string) string {
	s = strings.ToLower(s)
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	s = strings.ReplaceAll(s, "đ", "d")
	return s
}
