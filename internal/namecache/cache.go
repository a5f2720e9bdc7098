package namecache

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"cardscan/internal/logging"
	"cardscan/internal/services"
	"cardscan/internal/storage"
	"cardscan/internal/textutil"
)

const (
	// DefaultThreshold is the minimum score Lookup keeps.
	DefaultThreshold = 0.6
	// DefaultLimit caps the number of Lookup results.
	DefaultLimit = 10

	containedScore = 0.7
)

// Entry is one cached identity.
type Entry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SetName     string    `json:"set_name,omitempty"`
	SetID       string    `json:"set_id,omitempty"`
	Rarity      string    `json:"rarity,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Candidate is a ranked Lookup result.
type Candidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Options tunes the cache. Zero values use the defaults.
type Options struct {
	Limit int
	Now   func() time.Time
}

// Cache persists entries in the card_cache table.
type Cache struct {
	db     *sql.DB
	mu     sync.Mutex
	limit  int
	now    func() time.Time
	logger *slog.Logger
}

// New wraps an open learning database.
func New(db *sql.DB, opts Options, logger *slog.Logger) *Cache {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		db:     db,
		limit:  opts.Limit,
		now:    opts.Now,
		logger: logging.NewComponentLogger(logger, "namecache"),
	}
}

// Lookup ranks cached names against raw. A name scores its sequence
// similarity to the text, raised to 0.7 when either contains the other.
// Results below threshold are dropped; threshold <= 0 uses DefaultThreshold.
// Store failures are logged and yield no candidates.
func (c *Cache) Lookup(ctx context.Context, raw string, threshold float64) []Candidate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	text := textutil.Lower(raw)
	if text == "" {
		return nil
	}
	names, err := c.Names(ctx)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "name cache lookup failed", "namecache_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check learning.db"),
			logging.String(logging.FieldImpact, "fuzzy name signal skipped"),
		)
		return nil
	}

	out := make([]Candidate, 0, len(names))
	for _, name := range names {
		lowered := textutil.Lower(name)
		score := textutil.Ratio(text, lowered)
		if textutil.ContainsEither(text, lowered) && score < containedScore {
			score = containedScore
		}
		if score >= threshold {
			out = append(out, Candidate{Name: name, Score: score})
		}
	}
	// names arrive sorted, so a stable sort keeps ties alphabetical.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > c.limit {
		out = out[:c.limit]
	}
	return out
}

// Store upserts a single entry.
func (c *Cache) Store(ctx context.Context, entry Entry) error {
	_, err := c.Upsert(ctx, []Entry{entry})
	return err
}

// Upsert merges entries in one transaction. The last write wins for both the
// id and the (name, set name) key. Entries without an id or name are skipped;
// the number written is returned.
func (c *Cache) Upsert(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	now := storage.FormatTime(c.now())

	c.mu.Lock()
	defer c.mu.Unlock()
	written := 0
	err := storage.InTx(ctx, c.db, func(tx *sql.Tx) error {
		written = 0
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO card_cache (id, name, set_name, set_id, rarity, image_url, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range entries {
			id := strings.TrimSpace(e.ID)
			name := strings.TrimSpace(e.Name)
			if id == "" || name == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, id, name, strings.TrimSpace(e.SetName),
				storage.NullableString(e.SetID), storage.NullableString(e.Rarity),
				storage.NullableString(e.ImageURL), now); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "namecache", "upsert", "Failed to update name cache", err)
	}
	return written, nil
}

// Get returns the entry with id, or nil when absent.
func (c *Cache) Get(ctx context.Context, id string) (*Entry, error) {
	var (
		e                       Entry
		setID, rarity, imageURL sql.NullString
		updated                 string
	)
	err := c.db.QueryRowContext(storage.EnsureContext(ctx),
		"SELECT id, name, set_name, set_id, rarity, image_url, last_updated FROM card_cache WHERE id = ?", id,
	).Scan(&e.ID, &e.Name, &e.SetName, &setID, &rarity, &imageURL, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "namecache", "get", "Failed to read cache entry", err)
	}
	e.SetID = setID.String
	e.Rarity = rarity.String
	e.ImageURL = imageURL.String
	e.LastUpdated = storage.ParseTime(updated)
	return &e, nil
}

// Names returns the distinct cached names in sorted order.
func (c *Cache) Names(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(storage.EnsureContext(ctx), "SELECT DISTINCT name FROM card_cache ORDER BY name")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "namecache", "names", "Failed to list names", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, services.Wrap(services.ErrTransient, "namecache", "names", "Failed to decode name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "namecache", "names", "Failed to list names", err)
	}
	return names, nil
}

// Count returns the number of cached entries.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(storage.EnsureContext(ctx), "SELECT COUNT(*) FROM card_cache").Scan(&n); err != nil {
		return 0, services.Wrap(services.ErrTransient, "namecache", "count", "Failed to count entries", err)
	}
	return n, nil
}

// Clear removes every entry and returns how many were deleted.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := storage.Exec(ctx, c.db, "DELETE FROM card_cache")
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "namecache", "clear", "Failed to clear cache", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
