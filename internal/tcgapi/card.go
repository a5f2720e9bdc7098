package tcgapi

import "cardscan/internal/catalog"

// Card is a single API card record. Nested objects are pointers because the
// API omits them freely; use the accessor methods instead of probing fields.
type Card struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Supertype   string      `json:"supertype,omitempty"`
	Subtypes    []string    `json:"subtypes,omitempty"`
	HP          string      `json:"hp,omitempty"`
	Types       []string    `json:"types,omitempty"`
	EvolvesFrom string      `json:"evolvesFrom,omitempty"`
	Number      string      `json:"number,omitempty"`
	Artist      string      `json:"artist,omitempty"`
	Rarity      string      `json:"rarity,omitempty"`
	Set         *Set        `json:"set,omitempty"`
	Images      *Images     `json:"images,omitempty"`
	TCGPlayer   *TCGPlayer  `json:"tcgplayer,omitempty"`
	Cardmarket  *Cardmarket `json:"cardmarket,omitempty"`
}

// Set describes the expansion a card belongs to.
type Set struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Series      string `json:"series,omitempty"`
	ReleaseDate string `json:"releaseDate,omitempty"`
}

// Images holds card image URLs.
type Images struct {
	Small string `json:"small,omitempty"`
	Large string `json:"large,omitempty"`
}

// TCGPlayer carries USD pricing.
type TCGPlayer struct {
	URL       string                `json:"url,omitempty"`
	UpdatedAt string                `json:"updatedAt,omitempty"`
	Prices    map[string]PriceRange `json:"prices,omitempty"`
}

// PriceRange is one TCGPlayer price variant (normal, holofoil, ...).
type PriceRange struct {
	Low    *float64 `json:"low,omitempty"`
	Mid    *float64 `json:"mid,omitempty"`
	High   *float64 `json:"high,omitempty"`
	Market *float64 `json:"market,omitempty"`
}

// Cardmarket carries EUR pricing.
type Cardmarket struct {
	URL       string            `json:"url,omitempty"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
	Prices    *CardmarketPrices `json:"prices,omitempty"`
}

// CardmarketPrices is the subset of Cardmarket prices the client reads.
type CardmarketPrices struct {
	AverageSellPrice *float64 `json:"averageSellPrice,omitempty"`
	LowPrice         *float64 `json:"lowPrice,omitempty"`
	TrendPrice       *float64 `json:"trendPrice,omitempty"`
}

// SetName returns the set name or "".
func (c Card) SetName() string {
	if c.Set == nil {
		return ""
	}
	return c.Set.Name
}

// SetID returns the set id or "".
func (c Card) SetID() string {
	if c.Set == nil {
		return ""
	}
	return c.Set.ID
}

// SetSeries returns the set series or "".
func (c Card) SetSeries() string {
	if c.Set == nil {
		return ""
	}
	return c.Set.Series
}

// ImageURL prefers the large image and falls back to the small one.
func (c Card) ImageURL() string {
	if c.Images == nil {
		return ""
	}
	if c.Images.Large != "" {
		return c.Images.Large
	}
	return c.Images.Small
}

var priceVariants = []string{"normal", "holofoil", "reverseHolofoil", "1stEditionHolofoil", "unlimitedHolofoil"}

// MarketPrice returns the first TCGPlayer market price across the common
// variants, then the Cardmarket trend price. ok is false when neither exists.
func (c Card) MarketPrice() (price float64, currency string, ok bool) {
	if c.TCGPlayer != nil {
		for _, variant := range priceVariants {
			if p, found := c.TCGPlayer.Prices[variant]; found && p.Market != nil {
				return *p.Market, "USD", true
			}
		}
	}
	if c.Cardmarket != nil && c.Cardmarket.Prices != nil && c.Cardmarket.Prices.TrendPrice != nil {
		return *c.Cardmarket.Prices.TrendPrice, "EUR", true
	}
	return 0, "", false
}

// Reference converts the card into a catalog build reference.
func (c Card) Reference() catalog.Reference {
	return catalog.Reference{
		ID:       c.ID,
		Name:     c.Name,
		SetCode:  c.SetID(),
		SetName:  c.SetName(),
		Number:   c.Number,
		Rarity:   c.Rarity,
		ImageURL: c.ImageURL(),
	}
}
