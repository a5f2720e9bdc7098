package storage

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/catalog/*.sql migrations/learning/*.sql
var migrationsFS embed.FS

// Schema selects one of the embedded migration sets.
type Schema string

const (
	// SchemaCatalog holds the card_hashes table.
	SchemaCatalog Schema = "catalog"
	// SchemaLearning holds patterns, the name cache, corrections, and scan stats.
	SchemaLearning Schema = "learning"
)

// Migrate applies every pending migration of schema to the database at dbPath
// and returns the resulting version.
func Migrate(dbPath string, schema Schema) (uint, error) {
	dir, err := fs.Sub(migrationsFS, "migrations/"+string(schema))
	if err != nil {
		return 0, fmt.Errorf("access %s migrations: %w", schema, err)
	}
	source, err := iofs.New(dir, ".")
	if err != nil {
		return 0, fmt.Errorf("create %s migration source: %w", schema, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite://"+filepath.ToSlash(dbPath))
	if err != nil {
		return 0, fmt.Errorf("create %s migration instance: %w", schema, err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply %s migrations: %w", schema, err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read %s migration version: %w", schema, err)
	}
	if dirty {
		return version, fmt.Errorf("%s schema is dirty at version %d", schema, version)
	}
	return version, nil
}
