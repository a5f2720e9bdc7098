// Package patterns learns which card name a piece of recognized text resolves
// to.
//
// Each (text, name) pair keeps scan and success counts; confidence is always
// success/scan and is recomputed on every write. Lookups prefer exact text
// matches and fall back to a similarity-weighted scan over confident pairs.
package patterns
