package patterns

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cardscan/internal/logging"
	"cardscan/internal/services"
	"cardscan/internal/storage"
	"cardscan/internal/textutil"
)

const (
	defaultMinConfidence = 0.5
	defaultFuzzyFloor    = 0.7

	lookupOrder = "ORDER BY confidence DESC, scan_count DESC, last_used DESC, id DESC"
)

// Options tunes lookups. Zero values use the defaults.
type Options struct {
	// MinConfidence is the confidence a pair must exceed to be returned.
	MinConfidence float64
	// FuzzyFloor is the weighted similarity a fuzzy result must exceed.
	FuzzyFloor float64
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// Pattern is one learned (text, name) pair.
type Pattern struct {
	ID           int64     `json:"id"`
	RawText      string    `json:"raw_text"`
	Name         string    `json:"name"`
	Confidence   float64   `json:"confidence"`
	ScanCount    int       `json:"scan_count"`
	SuccessCount int       `json:"success_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsed     time.Time `json:"last_used"`
}

// Resolution is a lookup answer.
type Resolution struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	// Score is the similarity-weighted confidence for fuzzy answers and the
	// confidence itself for exact ones.
	Score float64 `json:"score"`
	Exact bool    `json:"exact"`
}

// Store persists patterns in the ocr_patterns table.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	opts   Options
	logger *slog.Logger
}

// New wraps an open learning database.
func New(db *sql.DB, opts Options, logger *slog.Logger) *Store {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = defaultMinConfidence
	}
	if opts.FuzzyFloor <= 0 {
		opts.FuzzyFloor = defaultFuzzyFloor
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{db: db, opts: opts, logger: logging.NewComponentLogger(logger, "patterns")}
}

// Record counts one observation of raw resolving to name. A new pair starts
// at scan_count 1; success decides whether success_count moves.
func (s *Store) Record(ctx context.Context, raw, name string, success bool) error {
	raw = strings.TrimSpace(raw)
	if err := validatePair(raw, name, "record"); err != nil {
		return err
	}
	now := storage.FormatTime(s.opts.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	err := storage.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var (
			id           int64
			scanCount    int
			successCount int
		)
		err := tx.QueryRowContext(ctx,
			"SELECT id, scan_count, success_count FROM ocr_patterns WHERE ocr_text = ? AND resolved_name = ?",
			raw, name,
		).Scan(&id, &scanCount, &successCount)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			successes := storage.BoolToInt(success)
			_, err = tx.ExecContext(ctx,
				`INSERT INTO ocr_patterns (ocr_text, resolved_name, confidence, scan_count, success_count, created_at, last_used)
				VALUES (?, ?, ?, 1, ?, ?, ?)`,
				raw, name, float64(successes), successes, now, now,
			)
			return err
		case err != nil:
			return err
		}
		scanCount++
		successCount += storage.BoolToInt(success)
		_, err = tx.ExecContext(ctx,
			"UPDATE ocr_patterns SET scan_count = ?, success_count = ?, confidence = ?, last_used = ? WHERE id = ?",
			scanCount, successCount, ratio(successCount, scanCount), now, id,
		)
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "patterns", "record", "Failed to record pattern", err)
	}
	return nil
}

// Reset forces the pair to a single successful observation (confidence 1.0)
// regardless of its history. Other names stored for raw are untouched.
func (s *Store) Reset(ctx context.Context, raw, name string) error {
	raw = strings.TrimSpace(raw)
	if err := validatePair(raw, name, "reset"); err != nil {
		return err
	}
	now := storage.FormatTime(s.opts.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := storage.Exec(ctx, s.db,
		`INSERT INTO ocr_patterns (ocr_text, resolved_name, confidence, scan_count, success_count, created_at, last_used)
		VALUES (?, ?, 1.0, 1, 1, ?, ?)
		ON CONFLICT(ocr_text, resolved_name) DO UPDATE SET
			confidence = 1.0, scan_count = 1, success_count = 1, last_used = excluded.last_used`,
		raw, name, now, now,
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, "patterns", "reset", "Failed to reset pattern", err)
	}
	return nil
}

// Lookup resolves raw to a learned name. Exact text matches above the
// confidence floor win, ordered by confidence, scan count, recency, then row
// id. Otherwise every confident pair is scored by the similarity of raw to its
// name times its confidence, and the best score above the fuzzy floor wins.
// Store failures are logged and reported as no answer.
func (s *Store) Lookup(ctx context.Context, raw string) (Resolution, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Resolution{}, false
	}
	res, ok, err := s.lookup(storage.EnsureContext(ctx), raw)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "pattern lookup failed", "pattern_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check learning.db"),
			logging.String(logging.FieldImpact, "learned text signal skipped"),
		)
		return Resolution{}, false
	}
	return res, ok
}

func (s *Store) lookup(ctx context.Context, raw string) (Resolution, bool, error) {
	var res Resolution
	err := s.db.QueryRowContext(ctx,
		"SELECT resolved_name, confidence FROM ocr_patterns WHERE ocr_text = ? AND confidence > ? "+lookupOrder+" LIMIT 1",
		raw, s.opts.MinConfidence,
	).Scan(&res.Name, &res.Confidence)
	if err == nil {
		res.Score = res.Confidence
		res.Exact = true
		return res, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Resolution{}, false, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT resolved_name, confidence FROM ocr_patterns WHERE confidence > ? "+lookupOrder,
		s.opts.MinConfidence,
	)
	if err != nil {
		return Resolution{}, false, err
	}
	defer rows.Close()

	query := textutil.Lower(raw)
	var (
		best  Resolution
		found bool
	)
	for rows.Next() {
		var name string
		var confidence float64
		if err := rows.Scan(&name, &confidence); err != nil {
			return Resolution{}, false, err
		}
		score := textutil.Ratio(query, textutil.Lower(name)) * confidence
		if score > best.Score && score > s.opts.FuzzyFloor {
			best = Resolution{Name: name, Confidence: confidence, Score: score}
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return Resolution{}, false, err
	}
	return best, found, nil
}

// Get returns the stored pair, or nil when absent.
func (s *Store) Get(ctx context.Context, raw, name string) (*Pattern, error) {
	row := s.db.QueryRowContext(storage.EnsureContext(ctx),
		"SELECT "+patternColumns+" FROM ocr_patterns WHERE ocr_text = ? AND resolved_name = ?", strings.TrimSpace(raw), name)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "patterns", "get", "Failed to read pattern", err)
	}
	return &p, nil
}

// List returns patterns in lookup order. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Pattern, error) {
	query := "SELECT " + patternColumns + " FROM ocr_patterns " + lookupOrder
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(storage.EnsureContext(ctx), query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "patterns", "list", "Failed to list patterns", err)
	}
	defer rows.Close()
	var out []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "patterns", "list", "Failed to decode pattern", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "patterns", "list", "Failed to list patterns", err)
	}
	return out, nil
}

// Count returns the number of learned pairs.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM ocr_patterns")
}

// CountAbove returns the number of pairs whose confidence exceeds threshold.
func (s *Store) CountAbove(ctx context.Context, threshold float64) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM ocr_patterns WHERE confidence > ?", threshold)
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(storage.EnsureContext(ctx), query, args...).Scan(&n); err != nil {
		return 0, services.Wrap(services.ErrTransient, "patterns", "count", "Failed to count patterns", err)
	}
	return n, nil
}

const patternColumns = "id, ocr_text, resolved_name, confidence, scan_count, success_count, created_at, last_used"

func scanPattern(scanner interface{ Scan(dest ...any) error }) (Pattern, error) {
	var (
		p          Pattern
		createdRaw string
		usedRaw    string
	)
	if err := scanner.Scan(&p.ID, &p.RawText, &p.Name, &p.Confidence, &p.ScanCount, &p.SuccessCount, &createdRaw, &usedRaw); err != nil {
		return Pattern{}, err
	}
	p.CreatedAt = storage.ParseTime(createdRaw)
	p.LastUsed = storage.ParseTime(usedRaw)
	return p, nil
}

func validatePair(raw, name, operation string) error {
	if strings.TrimSpace(raw) == "" {
		return services.Wrap(services.ErrValidation, "patterns", operation, "Recognized text is required", nil)
	}
	if strings.TrimSpace(name) == "" {
		return services.Wrap(services.ErrValidation, "patterns", operation, "Card name is required", nil)
	}
	return nil
}

func ratio(successes, scans int) float64 {
	if scans <= 0 {
		return 0
	}
	return float64(successes) / float64(scans)
}
