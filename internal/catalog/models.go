package catalog

import (
	"time"

	"cardscan/internal/imagehash"
)

// Reference is one card offered by a build Source.
type Reference struct {
	ID       string
	Name     string
	SetCode  string
	SetName  string
	Number   string
	Rarity   string
	ImageURL string
}

// Entry is a persisted catalog row.
type Entry struct {
	CardID      string
	Name        string
	SetCode     string
	SetName     string
	Number      string
	Rarity      string
	ImageURL    string
	Fingerprint imagehash.Fingerprint
	Downloaded  bool
	CreatedAt   time.Time
}

// Stats summarizes catalog contents.
type Stats struct {
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Sets       int `json:"sets"`
}
