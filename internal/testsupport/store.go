package testsupport

import (
	"context"
	"database/sql"
	"testing"

	"cardscan/internal/catalog"
	"cardscan/internal/config"
	"cardscan/internal/storage"
)

// MustOpenCatalog opens a catalog.Store for tests and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(context.Background(), cfg.CatalogDBPath())
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenLearningDB opens learning.db for tests and registers cleanup.
func MustOpenLearningDB(t testing.TB, cfg *config.Config) *sql.DB {
	t.Helper()

	db, err := storage.Open(context.Background(), cfg.LearningDBPath(), storage.SchemaLearning)
	if err != nil {
		t.Fatalf("open learning db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
