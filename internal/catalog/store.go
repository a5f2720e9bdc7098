package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cardscan/internal/imagehash"
	"cardscan/internal/services"
	"cardscan/internal/storage"
)

// Store manages catalog persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

var (
	entryMeta   = []string{"card_id", "name", "set_code", "set_name", "number", "rarity", "image_url", "downloaded", "created_at"}
	hashColumns = slotColumns()
	entryCols   = strings.Join(append(append([]string{}, entryMeta...), hashColumns...), ", ")
)

func slotColumns() []string {
	slots := imagehash.Slots()
	cols := make([]string, len(slots))
	for i, slot := range slots {
		cols[i] = slot.Column()
	}
	return cols
}

// Open initializes or connects to the catalog database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.Open(ctx, path, storage.SchemaCatalog)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "open", "Failed to open catalog database", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert writes every field of entry in one statement, replacing any existing
// row for the same card id.
func (s *Store) Upsert(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.CardID) == "" {
		return services.Wrap(services.ErrValidation, "catalog", "upsert", "Card id is required", nil)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	args := []any{
		entry.CardID,
		entry.Name,
		storage.NullableString(entry.SetCode),
		storage.NullableString(entry.SetName),
		storage.NullableString(entry.Number),
		storage.NullableString(entry.Rarity),
		storage.NullableString(entry.ImageURL),
		storage.BoolToInt(entry.Downloaded),
		storage.FormatTime(entry.CreatedAt),
	}
	for _, slot := range imagehash.Slots() {
		if h, ok := entry.Fingerprint.Get(slot.Algorithm, slot.Rotation); ok {
			args = append(args, h.String())
		} else {
			args = append(args, nil)
		}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	query := fmt.Sprintf("INSERT OR REPLACE INTO card_hashes (%s) VALUES (%s)", entryCols, placeholders)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := storage.Exec(ctx, s.db, query, args...); err != nil {
		return services.Wrap(services.ErrTransient, "catalog", "upsert", "Failed to store fingerprint", err)
	}
	return nil
}

// Has reports whether a row exists for cardID.
func (s *Store) Has(ctx context.Context, cardID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(storage.EnsureContext(ctx), "SELECT 1 FROM card_hashes WHERE card_id = ?", cardID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "catalog", "has", "Failed to query catalog", err)
	}
	return true, nil
}

// Get returns the row for cardID, or nil when absent.
func (s *Store) Get(ctx context.Context, cardID string) (*Entry, error) {
	row := s.db.QueryRowContext(storage.EnsureContext(ctx), "SELECT "+entryCols+" FROM card_hashes WHERE card_id = ?", cardID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "catalog", "get", "Failed to read catalog row", err)
	}
	return &entry, nil
}

// ForEachDownloaded streams downloaded rows in insertion order. Returning an
// error from fn stops the scan and is passed through.
func (s *Store) ForEachDownloaded(ctx context.Context, fn func(Entry) error) error {
	rows, err := s.db.QueryContext(storage.EnsureContext(ctx), "SELECT "+entryCols+" FROM card_hashes WHERE downloaded = 1 ORDER BY rowid")
	if err != nil {
		return services.Wrap(services.ErrTransient, "catalog", "scan", "Failed to read catalog", err)
	}
	defer rows.Close()
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return services.Wrap(services.ErrTransient, "catalog", "scan", "Failed to decode catalog row", err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return services.Wrap(services.ErrTransient, "catalog", "scan", "Failed to read catalog", err)
	}
	return nil
}

// Stats counts rows, downloaded rows, and distinct set codes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(storage.EnsureContext(ctx), `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN downloaded = 1 THEN 1 ELSE 0 END), 0),
		COUNT(DISTINCT set_code)
		FROM card_hashes`).Scan(&st.Total, &st.Downloaded, &st.Sets)
	if err != nil {
		return Stats{}, services.Wrap(services.ErrTransient, "catalog", "stats", "Failed to count catalog rows", err)
	}
	return st, nil
}

// Clear deletes every row and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := storage.Exec(ctx, s.db, "DELETE FROM card_hashes")
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "catalog", "clear", "Failed to clear catalog", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry      Entry
		setCode    sql.NullString
		setName    sql.NullString
		number     sql.NullString
		rarity     sql.NullString
		imageURL   sql.NullString
		downloaded int
		createdRaw string
	)
	hashes := make([]sql.NullString, len(hashColumns))
	dest := []any{&entry.CardID, &entry.Name, &setCode, &setName, &number, &rarity, &imageURL, &downloaded, &createdRaw}
	for i := range hashes {
		dest = append(dest, &hashes[i])
	}
	if err := scanner.Scan(dest...); err != nil {
		return Entry{}, err
	}
	entry.SetCode = setCode.String
	entry.SetName = setName.String
	entry.Number = number.String
	entry.Rarity = rarity.String
	entry.ImageURL = imageURL.String
	entry.Downloaded = downloaded != 0
	entry.CreatedAt = storage.ParseTime(createdRaw)

	// Unparsable hash fields are left as not computed; the matcher skips them.
	for i, slot := range imagehash.Slots() {
		if !hashes[i].Valid {
			continue
		}
		h, err := imagehash.ParseHash(hashes[i].String)
		if err != nil {
			continue
		}
		entry.Fingerprint.Set(slot.Algorithm, slot.Rotation, h)
	}
	return entry, nil
}
