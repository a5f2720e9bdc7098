package corrections

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cardscan/internal/logging"
	"cardscan/internal/services"
	"cardscan/internal/storage"
)

// DefaultHistory is the number of corrections Recent returns by default.
const DefaultHistory = 5

// PatternResetter receives the corrected pair after the ledger row is written.
type PatternResetter interface {
	Reset(ctx context.Context, raw, name string) error
}

// Correction is one ledger row.
type Correction struct {
	ID            int64     `json:"id"`
	RawText       string    `json:"raw_text"`
	CorrectedName string    `json:"corrected_name"`
	CardID        string    `json:"card_id,omitempty"`
	Date          time.Time `json:"correction_date"`
}

// Ledger persists corrections in the user_corrections table.
type Ledger struct {
	db       *sql.DB
	mu       sync.Mutex
	patterns PatternResetter
	now      func() time.Time
	logger   *slog.Logger
}

// New wraps an open learning database. patterns may be nil, in which case
// only the ledger row is written.
func New(db *sql.DB, patterns PatternResetter, now func() time.Time, logger *slog.Logger) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		db:       db,
		patterns: patterns,
		now:      now,
		logger:   logging.NewComponentLogger(logger, "corrections"),
	}
}

// Record appends a correction and resets the (raw, corrected) pattern to full
// confidence. Patterns for other names under the same raw text are untouched.
func (l *Ledger) Record(ctx context.Context, raw, corrected, cardID string) error {
	raw = strings.TrimSpace(raw)
	corrected = strings.TrimSpace(corrected)
	if raw == "" {
		return services.Wrap(services.ErrValidation, "corrections", "record", "Recognized text is required", nil)
	}
	if corrected == "" {
		return services.Wrap(services.ErrValidation, "corrections", "record", "Corrected name is required", nil)
	}

	l.mu.Lock()
	_, err := storage.Exec(ctx, l.db,
		"INSERT INTO user_corrections (ocr_text, corrected_name, card_id, correction_date) VALUES (?, ?, ?, ?)",
		raw, corrected, storage.NullableString(strings.TrimSpace(cardID)), storage.FormatTime(l.now()),
	)
	l.mu.Unlock()
	if err != nil {
		return services.Wrap(services.ErrTransient, "corrections", "record", "Failed to record correction", err)
	}

	attrs := append(logging.CardAttrs(cardID, corrected), logging.String("raw_text", raw))
	l.logger.Info("correction recorded", logging.Args(attrs...)...)

	if l.patterns == nil {
		return nil
	}
	if err := l.patterns.Reset(ctx, raw, corrected); err != nil {
		return services.Wrap(services.ErrTransient, "corrections", "record", "Failed to reset learned pattern", err)
	}
	return nil
}

// Recent returns the latest corrections for raw, newest first. limit <= 0
// uses DefaultHistory.
func (l *Ledger) Recent(ctx context.Context, raw string, limit int) ([]Correction, error) {
	if limit <= 0 {
		limit = DefaultHistory
	}
	rows, err := l.db.QueryContext(storage.EnsureContext(ctx),
		`SELECT id, ocr_text, corrected_name, card_id, correction_date FROM user_corrections
		WHERE ocr_text = ? ORDER BY correction_date DESC, id DESC LIMIT ?`,
		strings.TrimSpace(raw), limit,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "corrections", "recent", "Failed to query corrections", err)
	}
	defer rows.Close()

	var out []Correction
	for rows.Next() {
		var (
			c      Correction
			cardID sql.NullString
			date   string
		)
		if err := rows.Scan(&c.ID, &c.RawText, &c.CorrectedName, &cardID, &date); err != nil {
			return nil, services.Wrap(services.ErrTransient, "corrections", "recent", "Failed to decode correction", err)
		}
		c.CardID = cardID.String
		c.Date = storage.ParseTime(date)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "corrections", "recent", "Failed to query corrections", err)
	}
	return out, nil
}

// Count returns the total number of corrections.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(storage.EnsureContext(ctx), "SELECT COUNT(*) FROM user_corrections").Scan(&n); err != nil {
		return 0, services.Wrap(services.ErrTransient, "corrections", "count", "Failed to count corrections", err)
	}
	return n, nil
}
