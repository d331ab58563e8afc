package normalize

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// safeIDTransform strips diacritics: decompose, drop combining marks,
// recompose.
var safeIDTransform = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SafeChannelID converts a raw channel id into a form DVR frontends accept:
// percent-escapes decoded, diacritics stripped, spaces removed, only
// [A-Za-z0-9._-] kept, lowercased.
func SafeChannelID(raw string) string {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		decoded = raw
	}

	folded, _, err := transform.String(safeIDTransform, decoded)
	if err != nil {
		folded = decoded
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}
