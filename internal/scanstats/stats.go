// Package scanstats is the append-only audit log of confirmed scans.
package scanstats

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"cardscan/internal/services"
	"cardscan/internal/storage"
)

// Kind classifies how a scan was resolved.
type Kind string

const (
	KindText       Kind = "text"
	KindManual     Kind = "manual"
	KindCorrection Kind = "correction"
	KindImageHash  Kind = "image_hash"
)

// ParseKind accepts the stored spelling of a kind, case-insensitively.
func ParseKind(value string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case KindText, KindManual, KindCorrection, KindImageHash:
		return k, nil
	default:
		return "", fmt.Errorf("unknown scan kind %q", value)
	}
}

// Stat is one audit row.
type Stat struct {
	ID       int64     `json:"id"`
	Kind     Kind      `json:"scan_type"`
	CardName string    `json:"card_name,omitempty"`
	Success  bool      `json:"success"`
	Date     time.Time `json:"scan_date"`
}

// Log persists stats in the scan_stats table.
type Log struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// New wraps an open learning database.
func New(db *sql.DB, now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{db: db, now: now}
}

// Record appends one stat.
func (l *Log) Record(ctx context.Context, kind Kind, cardName string, success bool) error {
	if _, err := ParseKind(string(kind)); err != nil {
		return services.Wrap(services.ErrValidation, "scanstats", "record", "Invalid scan kind", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := storage.Exec(ctx, l.db,
		"INSERT INTO scan_stats (scan_type, card_name, success, scan_date) VALUES (?, ?, ?, ?)",
		string(kind), storage.NullableString(strings.TrimSpace(cardName)), storage.BoolToInt(success), storage.FormatTime(l.now()),
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, "scanstats", "record", "Failed to record scan", err)
	}
	return nil
}

// Total counts every recorded scan.
func (l *Log) Total(ctx context.Context) (int, error) {
	return l.count(ctx, "SELECT COUNT(*) FROM scan_stats")
}

// Successful counts scans flagged as successful.
func (l *Log) Successful(ctx context.Context) (int, error) {
	return l.count(ctx, "SELECT COUNT(*) FROM scan_stats WHERE success = 1")
}

// ByKind returns scan counts per kind. Kinds with no scans are absent.
func (l *Log) ByKind(ctx context.Context) (map[Kind]int, error) {
	rows, err := l.db.QueryContext(storage.EnsureContext(ctx), "SELECT scan_type, COUNT(*) FROM scan_stats GROUP BY scan_type")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "scanstats", "by kind", "Failed to group scans", err)
	}
	defer rows.Close()
	out := make(map[Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, services.Wrap(services.ErrTransient, "scanstats", "by kind", "Failed to decode scan counts", err)
		}
		out[Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "scanstats", "by kind", "Failed to group scans", err)
	}
	return out, nil
}

// Recent returns the newest stats first. limit <= 0 returns 20.
func (l *Log) Recent(ctx context.Context, limit int) ([]Stat, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(storage.EnsureContext(ctx),
		"SELECT id, scan_type, card_name, success, scan_date FROM scan_stats ORDER BY scan_date DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "scanstats", "recent", "Failed to query scans", err)
	}
	defer rows.Close()
	var out []Stat
	for rows.Next() {
		var (
			s       Stat
			kind    string
			name    sql.NullString
			success int
			date    string
		)
		if err := rows.Scan(&s.ID, &kind, &name, &success, &date); err != nil {
			return nil, services.Wrap(services.ErrTransient, "scanstats", "recent", "Failed to decode scan", err)
		}
		s.Kind = Kind(kind)
		s.CardName = name.String
		s.Success = success != 0
		s.Date = storage.ParseTime(date)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "scanstats", "recent", "Failed to query scans", err)
	}
	return out, nil
}

func (l *Log) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := l.db.QueryRowContext(storage.EnsureContext(ctx), query).Scan(&n); err != nil {
		return 0, services.Wrap(services.ErrTransient, "scanstats", "count", "Failed to count scans", err)
	}
	return n, nil
}
