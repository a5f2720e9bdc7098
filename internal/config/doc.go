// Package config loads, normalizes, and validates cardscan configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// POKEMONTCG_IO_API_KEY. The storage root is always explicit configuration:
// every database path is derived from Config rather than a process-wide
// default, so tests and multiple profiles never collide.
package config
