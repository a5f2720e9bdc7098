// Package textutil provides the string measures shared by the learning stores
// and the text extractor.
//
// Ratio is the sequence-matching similarity used for fuzzy name lookups. The
// remaining helpers lowercase, fold accents, and strip OCR noise from lines.
package textutil
