package catalog_test

import (
	"context"
	"testing"

	"cardscan/internal/catalog"
	"cardscan/internal/imagehash"
	"cardscan/internal/testsupport"
)

// entryNear stores a fingerprint whose base average hash differs from the
// query's in exactly bits positions; every other field is the inverse of the
// query hash and therefore 64 bits away.
func entryNear(id string, query imagehash.Fingerprint, bits int) catalog.Entry {
	var fp imagehash.Fingerprint
	for _, alg := range imagehash.Algorithms {
		q, _ := query.Get(alg, imagehash.Rotate0)
		fp.Set(alg, imagehash.Rotate0, ^q)
	}
	q, _ := query.Get(imagehash.Average, imagehash.Rotate0)
	fp.Set(imagehash.Average, imagehash.Rotate0, q^imagehash.Hash(uint64(1)<<uint(bits)-1))
	return catalog.Entry{CardID: id, Name: id, Fingerprint: fp, Downloaded: true}
}

func TestConfidence(t *testing.T) {
	cases := map[int]float64{0: 100, 1: 95, 10: 50, 15: 25, 19: 5, 20: 0, 40: 0}
	for distance, want := range cases {
		if got := catalog.Confidence(distance); got != want {
			t.Errorf("Confidence(%d) = %v, want %v", distance, got, want)
		}
	}
}

func TestMatchIdenticalHash(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	img := testsupport.Gradient(60, 84, 1)
	fp, err := imagehash.Compute(img)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if err := store.Upsert(ctx, catalog.Entry{CardID: "p1", Name: "Pikachu", Fingerprint: fp, Downloaded: true}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Upsert(ctx, catalog.Entry{CardID: "c1", Name: "Charizard", Fingerprint: fingerprintFor(t, 5), Downloaded: true}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matcher := catalog.NewMatcher(store, cfg.Matching.HashThreshold, nil)
	match, ok := matcher.Match(ctx, img, 15)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.Entry.CardID != "p1" || match.Distance != 0 || match.Confidence != 100 {
		t.Fatalf("unexpected match %+v", match)
	}
}

func TestMatchRespectsThreshold(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	img := testsupport.Gradient(60, 84, 3)
	query, err := imagehash.ComputeBase(img)
	if err != nil {
		t.Fatalf("ComputeBase: %v", err)
	}
	if err := store.Upsert(ctx, entryNear("near12", query, 12)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	matcher := catalog.NewMatcher(store, 0, nil)

	for _, threshold := range []int{1, 5, 11, 12, 13, 30} {
		match, ok := matcher.Match(ctx, img, threshold)
		if ok && match.Distance > threshold {
			t.Fatalf("threshold %d returned distance %d", threshold, match.Distance)
		}
		if want := threshold >= 12; ok != want {
			t.Fatalf("threshold %d: ok = %v, want %v", threshold, ok, want)
		}
		if ok && match.Confidence != 40 {
			t.Fatalf("confidence = %v, want 40", match.Confidence)
		}
	}

	// Non-positive thresholds fall back to the default of 15.
	if _, ok := matcher.Match(ctx, img, 0); !ok {
		t.Fatal("default threshold should accept distance 12")
	}
}

func TestMatchTieKeepsEarliestRow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	img := testsupport.Gradient(60, 84, 4)
	query, _ := imagehash.ComputeBase(img)
	for _, id := range []string{"first", "second"} {
		if err := store.Upsert(ctx, entryNear(id, query, 3)); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	match, ok := catalog.NewMatcher(store, 15, nil).Match(ctx, img, 15)
	if !ok || match.Entry.CardID != "first" {
		t.Fatalf("tie should keep the first row, got %+v (%v)", match, ok)
	}
}

func TestMatchIgnoresUndownloadedRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	img := testsupport.Gradient(60, 84, 1)
	fp, _ := imagehash.Compute(img)
	if err := store.Upsert(ctx, catalog.Entry{CardID: "p1", Name: "Pikachu", Fingerprint: fp}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, ok := catalog.NewMatcher(store, 15, nil).Match(ctx, img, 15); ok {
		t.Fatal("rows without downloaded=1 must not match")
	}
}

func TestMatchEmptyCatalogAndBadInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	matcher := catalog.NewMatcher(store, 15, nil)
	ctx := context.Background()

	if _, ok := matcher.Match(ctx, testsupport.Gradient(10, 10, 0), 15); ok {
		t.Fatal("empty catalog should not match")
	}
	if _, ok := matcher.MatchBytes(ctx, []byte("definitely not an image"), 15); ok {
		t.Fatal("undecodable bytes should not match")
	}
	if _, ok := matcher.Match(ctx, nil, 15); ok {
		t.Fatal("nil image should not match")
	}
}

func TestMatchBytesPNG(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	img := testsupport.Checker(64, 88, 8)
	fp, _ := imagehash.Compute(img)
	if err := store.Upsert(ctx, catalog.Entry{CardID: "b1", Name: "Bulbasaur", Fingerprint: fp, Downloaded: true}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	match, ok := catalog.NewMatcher(store, 15, nil).MatchBytes(ctx, testsupport.PNG(t, img), 15)
	if !ok || match.Entry.CardID != "b1" || match.Distance != 0 {
		t.Fatalf("unexpected match %+v (%v)", match, ok)
	}
}

func TestMatchAfterStoreClosedDegrades(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	matcher := catalog.NewMatcher(store, 15, nil)
	store.Close()
	if _, ok := matcher.Match(context.Background(), testsupport.Gradient(20, 20, 1), 15); ok {
		t.Fatal("closed store should yield no match")
	}
}
