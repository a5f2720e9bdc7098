package extract

import (
	"regexp"
	"strings"
)

var (
	hpPattern        = regexp.MustCompile(`(?i)HP\s*(\d+)`)
	setNumberPattern = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)

	energyTypes = []string{
		"Grass", "Fire", "Water", "Lightning", "Psychic",
		"Fighting", "Darkness", "Metal", "Dragon", "Fairy",
		"Colorless",
	}
	// Longest first so "Rare Holo" wins over "Rare" and "Uncommon" over "Common".
	rarities = []string{
		"Amazing Rare", "Rare Rainbow", "Rare Secret", "Rare Ultra", "Rare Holo",
		"Uncommon", "Common", "Promo", "Rare",
	}
)

// Details are auxiliary facts read from the card text.
type Details struct {
	HP        string `json:"hp,omitempty"`
	Type      string `json:"type,omitempty"`
	Rarity    string `json:"rarity,omitempty"`
	SetNumber string `json:"set_number,omitempty"`
}

// Empty reports whether nothing was found.
func (d Details) Empty() bool {
	return d == Details{}
}

// ParseDetails scans raw for HP, energy type, rarity, and a "25/102" style
// set number.
func ParseDetails(raw string) Details {
	var d Details
	if m := hpPattern.FindStringSubmatch(raw); m != nil {
		d.HP = m[1]
	}
	if m := setNumberPattern.FindStringSubmatch(raw); m != nil {
		d.SetNumber = m[1] + "/" + m[2]
	}
	lower := strings.ToLower(raw)
	d.Type = firstContained(lower, energyTypes)
	d.Rarity = firstContained(lower, rarities)
	return d
}

func firstContained(lower string, options []string) string {
	for _, option := range options {
		if strings.Contains(lower, strings.ToLower(option)) {
			return option
		}
	}
	return ""
}
