package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	lowerCaser   = cases.Lower(language.Und)
	disallowedRe = regexp.MustCompile(`[^a-zA-Z0-9\s\-'.]`)
)

// Lower lowercases s using Unicode case rules and trims surrounding space.
func Lower(s string) string {
	return lowerCaser.String(strings.TrimSpace(s))
}

// FoldAccents strips combining marks, so "Flabébé" becomes "Flabebe".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Clean removes characters outside letters, digits, whitespace, hyphen,
// apostrophe, and period, then trims. Accented letters are folded first so
// they survive as their base letter.
func Clean(s string) string {
	return strings.TrimSpace(disallowedRe.ReplaceAllString(FoldAccents(s), ""))
}

// AlphaRatio is the share of letters among the characters of s. Empty input
// has ratio 0.
func AlphaRatio(s string) float64 {
	total, letters := 0, 0
	for _, r := range s {
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}

// ContainsEither reports whether either string contains the other. Empty
// strings never count as contained.
func ContainsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
