// Package services defines shared utilities consumed by the identification
// engine, its stores, and the external catalog client.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is instead of string matching.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the engine.
package services
