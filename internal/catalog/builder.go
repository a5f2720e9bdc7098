package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"cardscan/internal/imagehash"
	"cardscan/internal/logging"
	"cardscan/internal/services"
)

// ErrBuildInProgress is returned when another build holds the build lock.
var ErrBuildInProgress = errors.New("catalog build already in progress")

// Source supplies the reference cards a build walks. limit is a hint; a
// source may return more and the builder truncates.
type Source interface {
	References(ctx context.Context, limit int) ([]Reference, error)
}

// StaticSource serves a fixed list of references.
type StaticSource []Reference

// References returns up to limit references (all when limit <= 0).
func (s StaticSource) References(_ context.Context, limit int) ([]Reference, error) {
	if limit > 0 && limit < len(s) {
		return append([]Reference(nil), s[:limit]...), nil
	}
	return append([]Reference(nil), s...), nil
}

// ProgressFunc observes build progress. current is 1-based.
type ProgressFunc func(current, total int, label string)

// BuildResult counts what a build did. Added is the number of newly
// fingerprinted cards.
type BuildResult struct {
	Added     int           `json:"added"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Processed int           `json:"processed"`
	Total     int           `json:"total"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Builder populates the catalog from a Source.
type Builder struct {
	store    *Store
	fetcher  Fetcher
	lockPath string
	logger   *slog.Logger
}

// NewBuilder wires a builder. lockPath may be empty to disable the
// cross-process build lock.
func NewBuilder(store *Store, fetcher Fetcher, lockPath string, logger *slog.Logger) *Builder {
	return &Builder{
		store:    store,
		fetcher:  fetcher,
		lockPath: strings.TrimSpace(lockPath),
		logger:   logging.NewComponentLogger(logger, "catalog-builder"),
	}
}

// Build walks source, fingerprinting every reference not yet in the catalog.
// Per-item failures are logged and counted; they never abort the batch. The
// limit and ctx are checked between items.
func (b *Builder) Build(ctx context.Context, source Source, limit int, onProgress ProgressFunc) (BuildResult, error) {
	var result BuildResult
	if source == nil {
		return result, services.Wrap(services.ErrValidation, "catalog", "build", "Build source is required", nil)
	}
	unlock, err := b.acquireLock()
	if err != nil {
		return result, err
	}
	defer unlock()

	started := time.Now()
	refs, err := source.References(ctx, limit)
	if err != nil {
		return result, services.Wrap(services.ErrExternalService, "catalog", "build", "Failed to list reference cards", err)
	}
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	result.Total = len(refs)
	b.logger.Info("catalog build started",
		logging.String(logging.FieldEventType, "catalog_build_started"),
		logging.Int("total", result.Total),
		logging.Int("limit", limit),
	)

	sampler := logging.NewProgressSampler(10)
	for idx, ref := range refs {
		if err := ctx.Err(); err != nil {
			result.Elapsed = time.Since(started)
			b.logger.Info("catalog build stopped",
				logging.String(logging.FieldEventType, "catalog_build_stopped"),
				logging.Int("processed", result.Processed),
				logging.Int("total", result.Total),
			)
			return result, err
		}
		if onProgress != nil {
			onProgress(idx+1, result.Total, ref.Name)
		}
		b.processOne(ctx, ref, &result)
		result.Processed++

		percent := logging.Percent(result.Processed, result.Total)
		if sampler.ShouldLog(percent, "fingerprint") {
			b.logger.Info("catalog build progress",
				logging.Float64(logging.FieldProgressPercent, percent),
				logging.Int("current", result.Processed),
				logging.Int("total", result.Total),
			)
		}
	}

	result.Elapsed = time.Since(started)
	b.logger.Info("catalog build finished",
		logging.String(logging.FieldEventType, "catalog_build_finished"),
		logging.Int("added", result.Added),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.Failed),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (b *Builder) processOne(ctx context.Context, ref Reference, result *BuildResult) {
	attrs := logging.CardAttrs(ref.ID, ref.Name)
	if strings.TrimSpace(ref.ID) == "" {
		result.Failed++
		b.warnItem("reference card has no id", "catalog_item_invalid", "fix the build source record", nil, attrs)
		return
	}

	exists, err := b.store.Has(ctx, ref.ID)
	if err != nil {
		result.Failed++
		b.warnItem("catalog lookup failed", "catalog_item_failed", "check catalog.db permissions", err, attrs)
		return
	}
	if exists {
		result.Skipped++
		return
	}

	if strings.TrimSpace(ref.ImageURL) == "" {
		result.Failed++
		b.warnItem("reference card has no image", "catalog_item_invalid", "card will be missing from image matching", nil, attrs)
		return
	}

	img, err := b.fetcher.Fetch(ctx, ref.ImageURL)
	if err != nil {
		result.Failed++
		b.warnItem("reference image download failed", "catalog_fetch_failed", "rerun the build to retry skipped cards", err,
			append(attrs, logging.String("image_url", ref.ImageURL)))
		return
	}
	fp, err := imagehash.Compute(img)
	if err != nil {
		result.Failed++
		b.warnItem("reference image hashing failed", "catalog_hash_failed", "rerun the build to retry skipped cards", err, attrs)
		return
	}

	entry := Entry{
		CardID:      ref.ID,
		Name:        ref.Name,
		SetCode:     ref.SetCode,
		SetName:     ref.SetName,
		Number:      ref.Number,
		Rarity:      ref.Rarity,
		ImageURL:    ref.ImageURL,
		Fingerprint: fp,
		Downloaded:  true,
		CreatedAt:   time.Now(),
	}
	if err := b.store.Upsert(ctx, entry); err != nil {
		result.Failed++
		b.warnItem("catalog write failed", "catalog_write_failed", "check free space and catalog.db permissions", err, attrs)
		return
	}
	result.Added++
	b.logger.Debug("card fingerprinted", logging.Args(attrs...)...)
}

func (b *Builder) warnItem(msg, eventType, hint string, err error, attrs []logging.Attr) {
	attrs = append(attrs,
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "card skipped"),
	)
	if err != nil {
		attrs = append(attrs, logging.Error(err))
	}
	logging.WarnWithContext(b.logger, msg, eventType, attrs...)
}

func (b *Builder) acquireLock() (func(), error) {
	if b.lockPath == "" {
		return func() {}, nil
	}
	lock := flock.New(b.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire build lock: %w", err)
	}
	if !ok {
		return nil, ErrBuildInProgress
	}
	return func() { _ = lock.Unlock() }, nil
}
