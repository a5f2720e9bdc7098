// Package app opens the cardscan stores and wires them into the
// identification engine, the catalog builder and the search service. The CLI
// and the operator server share it so both see the same configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"cardscan/internal/catalog"
	"cardscan/internal/config"
	"cardscan/internal/corrections"
	"cardscan/internal/identify"
	"cardscan/internal/logging"
	"cardscan/internal/namecache"
	"cardscan/internal/patterns"
	"cardscan/internal/scanstats"
	"cardscan/internal/search"
	"cardscan/internal/storage"
	"cardscan/internal/tcgapi"
)

// App holds every open store. Close releases them.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Catalog     *catalog.Store
	Matcher     *catalog.Matcher
	Builder     *catalog.Builder
	Learning    *sql.DB
	Patterns    *patterns.Store
	Names       *namecache.Cache
	Corrections *corrections.Ledger
	Stats       *scanstats.Log
	Engine      *identify.Engine
	Client      *tcgapi.Client
	Search      *search.Service
}

// Open creates the storage directories, opens catalog.db and learning.db and
// builds the engine.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	store, err := catalog.Open(ctx, cfg.CatalogDBPath())
	if err != nil {
		return nil, err
	}
	learning, err := storage.Open(ctx, cfg.LearningDBPath(), storage.SchemaLearning)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	client, err := tcgapi.NewFromConfig(cfg, logger)
	if err != nil {
		_ = store.Close()
		_ = learning.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Catalog:  store,
		Matcher:  catalog.NewMatcher(store, cfg.Matching.HashThreshold, logger),
		Builder:  catalog.NewBuilder(store, catalog.NewHTTPFetcher(cfg.FetchTimeout(), cfg.Catalog.UserAgent), cfg.BuildLockPath(), logger),
		Learning: learning,
		Patterns: patterns.New(learning, patterns.Options{
			MinConfidence: cfg.Learning.PatternMinConfidence,
			FuzzyFloor:    cfg.Learning.PatternFuzzyFloor,
		}, logger),
		Names:  namecache.New(learning, namecache.Options{Limit: cfg.Learning.FuzzyLimit}, logger),
		Stats:  scanstats.New(learning, nil),
		Client: client,
	}
	a.Corrections = corrections.New(learning, a.Patterns, nil, logger)
	a.Search = search.NewService(client, a.Names, logger)

	engine, err := identify.NewEngine(identify.Deps{
		Matcher:     a.Matcher,
		Patterns:    a.Patterns,
		Names:       a.Names,
		Corrections: a.Corrections,
		Stats:       a.Stats,
	}, identify.Options{
		HashThreshold:        cfg.Matching.HashThreshold,
		ImageConfidenceFloor: cfg.Matching.ImageConfidenceFloor,
		FuzzyThreshold:       cfg.Learning.FuzzyThreshold,
	}, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Engine = engine
	return a, nil
}

// Close closes both databases.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Catalog != nil {
		errs = append(errs, a.Catalog.Close())
	}
	if a.Learning != nil {
		errs = append(errs, a.Learning.Close())
	}
	return errors.Join(errs...)
}
