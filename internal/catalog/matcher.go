package catalog

import (
	"context"
	"image"
	"log/slog"

	"cardscan/internal/imagehash"
	"cardscan/internal/logging"
)

// DefaultThreshold is the largest accepted Hamming distance when the caller
// passes none.
const DefaultThreshold = 15

// Match is the closest catalog card for a query image.
type Match struct {
	Entry      Entry          `json:"entry"`
	Distance   int            `json:"distance"`
	Confidence float64        `json:"confidence"`
	Slot       imagehash.Slot `json:"-"`
}

// Confidence maps a distance to a 0-100 score: 100 at distance 0, clamped to
// 0 from distance 20.
func Confidence(distance int) float64 {
	c := 100 - 5*distance
	if c < 0 {
		return 0
	}
	return float64(c)
}

// Matcher answers image queries with a full scan over downloaded rows.
type Matcher struct {
	store     *Store
	threshold int
	logger    *slog.Logger
}

// NewMatcher wires a matcher. A non-positive threshold uses DefaultThreshold.
func NewMatcher(store *Store, threshold int, logger *slog.Logger) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{store: store, threshold: threshold, logger: logging.NewComponentLogger(logger, "matcher")}
}

// MatchBytes decodes data and matches it. Undecodable input is no match.
func (m *Matcher) MatchBytes(ctx context.Context, data []byte, threshold int) (Match, bool) {
	img, err := imagehash.DecodeBytes(data)
	if err != nil {
		m.logger.Debug("query image decode failed", logging.Error(err))
		return Match{}, false
	}
	return m.Match(ctx, img, threshold)
}

// Match returns the catalog row closest to img when its distance is within
// threshold (the matcher default when threshold <= 0). Each row is scored by
// the minimum over its stored variants; ties keep the earliest row.
func (m *Matcher) Match(ctx context.Context, img image.Image, threshold int) (Match, bool) {
	if threshold <= 0 {
		threshold = m.threshold
	}
	query, err := imagehash.ComputeBase(img)
	if err != nil {
		m.logger.Debug("query image hashing failed", logging.Error(err))
		return Match{}, false
	}

	var (
		best  Match
		found bool
		rows  int
	)
	err = m.store.ForEachDownloaded(ctx, func(entry Entry) error {
		rows++
		distance, slot, ok := rowDistance(query, entry.Fingerprint)
		if !ok {
			return nil
		}
		if !found || distance < best.Distance {
			best = Match{Entry: entry, Distance: distance, Slot: slot}
			found = true
		}
		return nil
	})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "catalog scan failed", "catalog_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check catalog.db; image matching is unavailable"),
			logging.String(logging.FieldImpact, "image signal skipped for this capture"),
		)
		return Match{}, false
	}
	if !found || best.Distance > threshold {
		m.logger.Debug("no catalog match",
			logging.Int("rows", rows),
			logging.Int("threshold", threshold),
			logging.Bool("candidate", found),
			logging.Int("distance", best.Distance),
		)
		return Match{}, false
	}
	best.Confidence = Confidence(best.Distance)
	m.logger.Debug("catalog match",
		logging.String(logging.FieldCardID, best.Entry.CardID),
		logging.String(logging.FieldCardName, best.Entry.Name),
		logging.Int("distance", best.Distance),
		logging.String("matched_hash", best.Slot.Column()),
	)
	return best, true
}

// rowDistance compares each query base hash with every stored variant of the
// same algorithm and returns the minimum.
func rowDistance(query, stored imagehash.Fingerprint) (int, imagehash.Slot, bool) {
	var (
		lowest int
		slot   imagehash.Slot
		found  bool
	)
	for _, alg := range imagehash.Algorithms {
		q, ok := query.Get(alg, imagehash.Rotate0)
		if !ok {
			continue
		}
		for _, rot := range imagehash.Rotations {
			h, ok := stored.Get(alg, rot)
			if !ok {
				continue
			}
			d := imagehash.Distance(q, h)
			if !found || d < lowest {
				lowest, slot, found = d, imagehash.Slot{Algorithm: alg, Rotation: rot}, true
			}
		}
	}
	return lowest, slot, found
}
