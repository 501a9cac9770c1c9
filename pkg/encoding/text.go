package encoding

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize prepares a free-text value for the external platform: NFC form,
// control characters removed, surrounding space trimmed.
// Bytes that are not valid UTF-8 are assumed to be Windows-1252, which is what
// legacy imports into the contact store carry.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	if !utf8.ValidString(s) {
		if decoded, err := charmap.Windows1252.NewDecoder().String(s); err == nil {
			s = decoded
		}
	}

	t := transform.Chain(norm.NFC, runes.Remove(runes.Predicate(isControl)))
	out, _, err := transform.String(t, s)
	if err != nil {
		// The chain only fails on invalid input, which was handled above.
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(out)
}

func isControl(r rune) bool {
	return unicode.IsControl(r) && r != '\t'
}
