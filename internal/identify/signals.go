package identify

import (
	"cardscan/internal/catalog"
	"cardscan/internal/extract"
	"cardscan/internal/namecache"
)

// Origin records where a text-derived name came from.
type Origin string

const (
	OriginExtracted Origin = "extracted"
	OriginLearned   Origin = "learned"
	OriginFuzzy     Origin = "fuzzy"
	OriginNone      Origin = ""
)

// Source tags the signal a recommendation is based on.
type Source string

const (
	SourceImageHash Source = "image_hash"
	SourceText      Source = "text"
	SourceNone      Source = "none"
)

// Level grades a recommendation for display.
type Level string

const (
	LevelHigh     Level = "high"
	LevelModerate Level = "moderate"
	LevelText     Level = "text"
	LevelNone     Level = "none"
)

const highConfidence = 80

// TextSignal is everything the text path produced.
type TextSignal struct {
	// Name is the text-derived card name, empty when there is none.
	Name   string  `json:"name,omitempty"`
	Origin Origin  `json:"origin,omitempty"`
	Score  float64 `json:"score,omitempty"`
	// Extracted is the top extraction candidate even when it was too weak
	// to use.
	Extracted *extract.Candidate `json:"extracted,omitempty"`
	// Weak is set when Extracted failed the name rule.
	Weak         bool                  `json:"weak,omitempty"`
	Alternatives []namecache.Candidate `json:"alternatives,omitempty"`
}

// HashSignal is the closest catalog card for the image.
type HashSignal struct {
	CardID     string  `json:"card_id"`
	Name       string  `json:"name"`
	SetName    string  `json:"set_name,omitempty"`
	SetCode    string  `json:"set_code,omitempty"`
	Number     string  `json:"number,omitempty"`
	Rarity     string  `json:"rarity,omitempty"`
	ImageURL   string  `json:"image_url,omitempty"`
	Distance   int     `json:"distance"`
	Confidence float64 `json:"confidence"`
	Variant    string  `json:"variant,omitempty"`
}

func hashSignal(m catalog.Match) *HashSignal {
	return &HashSignal{
		CardID:     m.Entry.CardID,
		Name:       m.Entry.Name,
		SetName:    m.Entry.SetName,
		SetCode:    m.Entry.SetCode,
		Number:     m.Entry.Number,
		Rarity:     m.Entry.Rarity,
		ImageURL:   m.Entry.ImageURL,
		Distance:   m.Distance,
		Confidence: m.Confidence,
		Variant:    m.Slot.Column(),
	}
}

// Recommendation is the arbitrated answer shown to the operator.
type Recommendation struct {
	Source     Source  `json:"source"`
	Name       string  `json:"name,omitempty"`
	CardID     string  `json:"card_id,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Level      Level   `json:"level"`
	Message    string  `json:"message"`
}

// Reliable reports whether any signal produced a name.
func (r Recommendation) Reliable() bool {
	return r.Source != SourceNone
}

func arbitrate(text TextSignal, hash *HashSignal, floor float64) Recommendation {
	if hash != nil && hash.Confidence > floor {
		rec := Recommendation{
			Source:     SourceImageHash,
			Name:       hash.Name,
			CardID:     hash.CardID,
			Confidence: hash.Confidence,
			Level:      LevelModerate,
			Message:    "Moderate confidence image match. Verify the card name before confirming.",
		}
		if hash.Confidence > highConfidence {
			rec.Level = LevelHigh
			rec.Message = "High confidence image match. Confirm to proceed."
		}
		return rec
	}
	if text.Name != "" {
		return Recommendation{
			Source:  SourceText,
			Name:    text.Name,
			Level:   LevelText,
			Message: "Using text detection. The card name may need manual correction.",
		}
	}
	return Recommendation{
		Source:  SourceNone,
		Level:   LevelNone,
		Message: "No reliable detection. Enter the card name with a manual correction.",
	}
}
