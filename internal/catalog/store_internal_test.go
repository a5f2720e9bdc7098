package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"cardscan/internal/imagehash"
)

func TestScanEntrySkipsUnparsableHashes(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	var fp imagehash.Fingerprint
	fp.Set(imagehash.Average, imagehash.Rotate0, 0xff)
	fp.Set(imagehash.Perceptual, imagehash.Rotate0, 0x0f)
	if err := store.Upsert(ctx, Entry{CardID: "x", Name: "X", Fingerprint: fp, Downloaded: true}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := store.db.Exec("UPDATE card_hashes SET perceptual_hash = 'not-hex' WHERE card_id = 'x'"); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	entry, err := store.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := entry.Fingerprint.Get(imagehash.Perceptual, imagehash.Rotate0); ok {
		t.Fatal("unparsable hash should be treated as not computed")
	}
	if h, ok := entry.Fingerprint.Get(imagehash.Average, imagehash.Rotate0); !ok || h != 0xff {
		t.Fatalf("average hash = %s, %v", h, ok)
	}
}

func TestRowDistanceUsesRotatedVariants(t *testing.T) {
	var query, stored imagehash.Fingerprint
	query.Set(imagehash.Average, imagehash.Rotate0, 0x00ff)
	query.Set(imagehash.Difference, imagehash.Rotate0, 0x0000)

	stored.Set(imagehash.Average, imagehash.Rotate0, 0xff00)
	stored.Set(imagehash.Average, imagehash.Rotate180, 0x00fe)
	stored.Set(imagehash.Difference, imagehash.Rotate0, 0x0f0f)

	d, slot, ok := rowDistance(query, stored)
	if !ok || d != 1 {
		t.Fatalf("distance = %d (%v), want 1", d, ok)
	}
	if slot.Column() != "average_hash_180" {
		t.Fatalf("slot = %s, want average_hash_180", slot.Column())
	}

	var empty imagehash.Fingerprint
	if _, _, ok := rowDistance(query, empty); ok {
		t.Fatal("row without hashes should not produce a distance")
	}
}
