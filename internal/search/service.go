package search

import (
	"context"
	"log/slog"
	"strings"

	"cardscan/internal/logging"
	"cardscan/internal/namecache"
	"cardscan/internal/services"
	"cardscan/internal/tcgapi"
)

// Mode reports which query produced the results.
type Mode string

const (
	ModeExact Mode = "exact"
	ModeFuzzy Mode = "fuzzy"
	ModeNone  Mode = "none"
)

// Searcher is the remote catalog surface the service needs.
type Searcher interface {
	SearchByName(ctx context.Context, name, setName string) ([]tcgapi.Card, error)
	SearchFuzzy(ctx context.Context, name string) ([]tcgapi.Card, error)
}

// CacheWriter receives observed identities.
type CacheWriter interface {
	Upsert(ctx context.Context, entries []namecache.Entry) (int, error)
}

// Result is one search answer.
type Result struct {
	Query string        `json:"query"`
	Mode  Mode          `json:"mode"`
	Cards []tcgapi.Card `json:"cards"`
	// Cached is the number of identities written to the name cache.
	Cached int `json:"cached"`
}

// Service coordinates remote searches and cache population.
type Service struct {
	client Searcher
	cache  CacheWriter
	logger *slog.Logger
}

// NewService wires a searcher to a cache. cache may be nil.
func NewService(client Searcher, cache CacheWriter, logger *slog.Logger) *Service {
	return &Service{client: client, cache: cache, logger: logging.NewComponentLogger(logger, "search")}
}

// Search runs an exact name query (narrowed by setName when given) and falls
// back to a prefix query when it finds nothing. Remote failures are returned;
// cache failures are logged and leave Cached at zero.
func (s *Service) Search(ctx context.Context, name, setName string) (Result, error) {
	name = strings.TrimSpace(name)
	result := Result{Query: name, Mode: ModeNone}
	if name == "" {
		return result, services.Wrap(services.ErrValidation, "search", "search", "Card name is required", nil)
	}

	cards, err := s.client.SearchByName(ctx, name, setName)
	if err != nil {
		return result, err
	}
	result.Mode = ModeExact
	if len(cards) == 0 {
		cards, err = s.client.SearchFuzzy(ctx, name)
		if err != nil {
			return result, err
		}
		result.Mode = ModeFuzzy
	}
	if len(cards) == 0 {
		result.Mode = ModeNone
	}
	result.Cards = cards

	attrs := append(logging.DecisionAttrs("card_search", string(result.Mode), "exact query first"),
		logging.String("query", name),
		logging.Int("total", len(cards)),
	)
	s.logger.Info("card search complete", logging.Args(attrs...)...)

	result.Cached = s.cacheCards(ctx, cards)
	return result, nil
}

func (s *Service) cacheCards(ctx context.Context, cards []tcgapi.Card) int {
	if s.cache == nil || len(cards) == 0 {
		return 0
	}
	entries := make([]namecache.Entry, 0, len(cards))
	for _, card := range cards {
		entries = append(entries, Entry(card))
	}
	n, err := s.cache.Upsert(ctx, entries)
	if err != nil {
		logging.WarnWithContext(s.logger, "name cache update failed", "namecache_upsert_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check learning.db"),
			logging.String(logging.FieldImpact, "fuzzy fallback will not see these cards"),
		)
		return 0
	}
	return n
}

// Entry converts a card into a name cache entry.
func Entry(card tcgapi.Card) namecache.Entry {
	return namecache.Entry{
		ID:       card.ID,
		Name:     card.Name,
		SetName:  card.SetName(),
		SetID:    card.SetID(),
		Rarity:   card.Rarity,
		ImageURL: card.ImageURL(),
	}
}

// BestMatch picks the candidate closest to name: a case-insensitive exact
// match, then the first candidate that contains or is contained by name, then
// the candidate sharing the most words. ok is false when nothing qualifies.
func BestMatch(name string, candidates []string) (string, bool) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" || len(candidates) == 0 {
		return "", false
	}
	for _, c := range candidates {
		if strings.ToLower(c) == query {
			return c, true
		}
	}
	for _, c := range candidates {
		lowered := strings.ToLower(c)
		if lowered == "" {
			continue
		}
		if strings.Contains(lowered, query) || strings.Contains(query, lowered) {
			return c, true
		}
	}

	queryWords := wordSet(query)
	best, bestScore := "", 0
	for _, c := range candidates {
		score := 0
		for w := range wordSet(strings.ToLower(c)) {
			if _, ok := queryWords[w]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore > 0
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}
