package extract

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"cardscan/internal/textutil"
)

// Strategy identifies how a candidate was found. Lower values rank first.
type Strategy int

const (
	// StrategyLine takes whole leading lines that are mostly letters.
	StrategyLine Strategy = 1
	// StrategyToken takes single words that are mostly letters.
	StrategyToken Strategy = 2
	// StrategyCapitalized takes capitalized words near the top of the card.
	StrategyCapitalized Strategy = 3
)

const (
	lineWindow        = 7
	lineMinRatio      = 0.4
	tokenMinLength    = 3
	tokenMinRatio     = 0.6
	capitalizedWindow = 10

	acceptMinLength = 3
	acceptMinRatio  = 0.5
)

func (s Strategy) String() string {
	switch s {
	case StrategyLine:
		return "line"
	case StrategyToken:
		return "token"
	case StrategyCapitalized:
		return "capitalized"
	default:
		return "unknown"
	}
}

// Candidate is a proposed card name.
type Candidate struct {
	Text       string   `json:"text"`
	Strategy   Strategy `json:"priority"`
	AlphaRatio float64  `json:"alpha_ratio"`
}

// Accepted reports whether the candidate looks like a card name: at least
// three characters, more than half of them letters.
func (c Candidate) Accepted() bool {
	return utf8.RuneCountInString(c.Text) >= acceptMinLength && c.AlphaRatio > acceptMinRatio
}

// Candidates returns every proposal for raw, best first.
func Candidates(raw string) []Candidate {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	var out []Candidate

	for _, line := range head(lines, lineWindow) {
		cleaned := textutil.Clean(line)
		if cleaned == "" {
			continue
		}
		if ratio := textutil.AlphaRatio(cleaned); ratio > lineMinRatio {
			out = append(out, Candidate{Text: cleaned, Strategy: StrategyLine, AlphaRatio: ratio})
		}
	}

	for _, token := range strings.Fields(raw) {
		cleaned := textutil.Clean(token)
		if utf8.RuneCountInString(cleaned) < tokenMinLength {
			continue
		}
		if ratio := textutil.AlphaRatio(cleaned); ratio > tokenMinRatio {
			out = append(out, Candidate{Text: cleaned, Strategy: StrategyToken, AlphaRatio: ratio})
		}
	}

	for _, line := range head(lines, capitalizedWindow) {
		for _, token := range strings.Fields(line) {
			cleaned := textutil.Clean(token)
			first, _ := utf8.DecodeRuneInString(cleaned)
			if cleaned == "" || !unicode.IsUpper(first) {
				continue
			}
			out = append(out, Candidate{Text: cleaned, Strategy: StrategyCapitalized, AlphaRatio: textutil.AlphaRatio(cleaned)})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Strategy != b.Strategy {
			return a.Strategy < b.Strategy
		}
		if a.AlphaRatio != b.AlphaRatio {
			return a.AlphaRatio > b.AlphaRatio
		}
		return utf8.RuneCountInString(a.Text) > utf8.RuneCountInString(b.Text)
	})
	return out
}

// Best returns the top-ranked candidate, if any. Callers should still check
// Accepted before trusting it.
func Best(raw string) (Candidate, bool) {
	all := Candidates(raw)
	if len(all) == 0 {
		return Candidate{}, false
	}
	return all[0], true
}

func head(lines []string, n int) []string {
	if len(lines) > n {
		return lines[:n]
	}
	return lines
}
