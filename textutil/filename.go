package textutil

import (
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9_.-]+`)

// SafeFilename flattens s into an ascii file name component: accents are
// folded away and anything outside [a-z0-9_.-] collapses to a single
// underscore. The result is never empty.
func SafeFilename(s string) string {
	s = Fold(s)
	s = unsafeFilenameChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "book"
	}
	return s
}
