package correlator

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const tatweel = '\u0640'

// Normalize is the identity key for entity names: trimmed, whitespace collapsed, case-folded,
// with combining marks (Latin accents, Arabic harakat) and tatweel removed.
func Normalize(name string) string {
	s := strings.Join(strings.Fields(name), " ")
	if s == "" {
		return ""
	}
	s = cases.Fold().String(s)
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == tatweel })),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(out)
}
