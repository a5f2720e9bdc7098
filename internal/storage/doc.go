// Package storage opens the SQLite databases that back the catalog and the
// learning stores.
//
// Schemas are embedded golang-migrate migrations applied on open, so a fresh
// storage root and an existing one go through the same path. The package also
// carries the busy-retry and timestamp helpers every store shares.
package storage
