package tcgapi

import (
	"encoding/json"
	"testing"
)

func TestCardAccessorsTolerateMissingFields(t *testing.T) {
	var card Card
	if err := json.Unmarshal([]byte(`{"id":"base1-58","name":"Pikachu"}`), &card); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if card.SetName() != "" || card.SetID() != "" || card.SetSeries() != "" || card.ImageURL() != "" {
		t.Fatalf("expected empty accessors, got %#v", card)
	}
	if _, _, ok := card.MarketPrice(); ok {
		t.Fatal("expected no price")
	}
	ref := card.Reference()
	if ref.ID != "base1-58" || ref.Name != "Pikachu" || ref.SetCode != "" {
		t.Fatalf("reference = %#v", ref)
	}
}

func TestCardAccessorsReadNestedFields(t *testing.T) {
	payload := `{
		"id": "base1-4", "name": "Charizard", "number": "4", "rarity": "Rare Holo",
		"set": {"id": "base1", "name": "Base", "series": "Base"},
		"images": {"small": "small.png", "large": "large.png"},
		"tcgplayer": {"prices": {"holofoil": {"low": 200.5, "market": 350.25}}},
		"cardmarket": {"prices": {"trendPrice": 300}}
	}`
	var card Card
	if err := json.Unmarshal([]byte(payload), &card); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if card.SetName() != "Base" || card.SetID() != "base1" || card.ImageURL() != "large.png" {
		t.Fatalf("accessors = %q %q %q", card.SetName(), card.SetID(), card.ImageURL())
	}
	price, currency, ok := card.MarketPrice()
	if !ok || price != 350.25 || currency != "USD" {
		t.Fatalf("MarketPrice = %v %s %v", price, currency, ok)
	}

	card.TCGPlayer = nil
	price, currency, ok = card.MarketPrice()
	if !ok || price != 300 || currency != "EUR" {
		t.Fatalf("fallback MarketPrice = %v %s %v", price, currency, ok)
	}

	ref := card.Reference()
	if ref.SetCode != "base1" || ref.SetName != "Base" || ref.Number != "4" || ref.ImageURL != "large.png" {
		t.Fatalf("reference = %#v", ref)
	}
}
