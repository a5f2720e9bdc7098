// Package catalog persists reference card fingerprints and answers image
// queries against them.
//
// Store owns catalog.db. Builder walks a Source of reference cards, downloads
// each image, fingerprints it, and upserts the row; items already present are
// skipped so an interrupted build resumes where it stopped. Matcher performs a
// full scan over downloaded rows and returns the closest card by Hamming
// distance.
package catalog
