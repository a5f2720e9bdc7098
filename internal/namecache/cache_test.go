package namecache_test

import (
	"context"
	"math"
	"testing"

	"cardscan/internal/logging"
	"cardscan/internal/namecache"
	"cardscan/internal/testsupport"
)

func newCache(t *testing.T, opts namecache.Options) *namecache.Cache {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenLearningDB(t, cfg)
	return namecache.New(db, opts, logging.NewNop())
}

func seed(t *testing.T, cache *namecache.Cache) {
	t.Helper()
	entries := []namecache.Entry{
		{ID: "base1-58", Name: "Pikachu", SetName: "Base", SetID: "base1", Rarity: "Common"},
		{ID: "swsh4-43", Name: "Pikachu V", SetName: "Vivid Voltage", SetID: "swsh4"},
		{ID: "base1-14", Name: "Raichu", SetName: "Base", SetID: "base1"},
		{ID: "neo1-35", Name: "Pichu", SetName: "Neo Genesis"},
		{ID: "base1-4", Name: "Charizard", SetName: "Base", SetID: "base1", Rarity: "Rare Holo"},
	}
	n, err := cache.Upsert(context.Background(), entries)
	if err != nil || n != len(entries) {
		t.Fatalf("Upsert = %d, %v", n, err)
	}
}

func TestLookupRanksByScore(t *testing.T) {
	cache := newCache(t, namecache.Options{})
	seed(t, cache)

	got := cache.Lookup(context.Background(), "  PIKACHU ", 0.6)
	want := []string{"Pikachu", "Pikachu V", "Pichu", "Raichu"}
	if len(got) != len(want) {
		t.Fatalf("Lookup = %#v", got)
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("result %d = %s, want %s (%#v)", i, got[i].Name, name, got)
		}
		if got[i].Score < 0.6 {
			t.Fatalf("score below threshold: %#v", got[i])
		}
		if i > 0 && got[i].Score > got[i-1].Score {
			t.Fatalf("results not sorted: %#v", got)
		}
	}
	if got[0].Score != 1.0 {
		t.Fatalf("exact name score = %f", got[0].Score)
	}
}

func TestLookupContainmentFloor(t *testing.T) {
	cache := newCache(t, namecache.Options{})
	seed(t, cache)

	got := cache.Lookup(context.Background(), "pika", 0)
	if len(got) != 2 {
		t.Fatalf("Lookup = %#v", got)
	}
	if got[0].Name != "Pikachu" || math.Abs(got[0].Score-8.0/11.0) > 1e-9 {
		t.Fatalf("first = %#v", got[0])
	}
	// similarity alone is 8/13; containment lifts it to 0.7
	if got[1].Name != "Pikachu V" || got[1].Score != 0.7 {
		t.Fatalf("second = %#v", got[1])
	}
}

func TestLookupCapsResults(t *testing.T) {
	cache := newCache(t, namecache.Options{Limit: 2})
	seed(t, cache)
	if got := cache.Lookup(context.Background(), "pikachu", 0.1); len(got) != 2 {
		t.Fatalf("Lookup = %#v", got)
	}

	defaults := newCache(t, namecache.Options{})
	entries := make([]namecache.Entry, 0, 15)
	for i := range 15 {
		entries = append(entries, namecache.Entry{ID: string(rune('a' + i)), Name: "Pikachu " + string(rune('A'+i))})
	}
	if _, err := defaults.Upsert(context.Background(), entries); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got := defaults.Lookup(context.Background(), "pikachu", 0.6); len(got) != namecache.DefaultLimit {
		t.Fatalf("Lookup returned %d results, want %d", len(got), namecache.DefaultLimit)
	}
}

func TestLookupNoMatches(t *testing.T) {
	cache := newCache(t, namecache.Options{})
	if got := cache.Lookup(context.Background(), "Xyz123", 0.6); len(got) != 0 {
		t.Fatalf("empty cache Lookup = %#v", got)
	}
	seed(t, cache)
	if got := cache.Lookup(context.Background(), "Xyz123", 0.6); len(got) != 0 {
		t.Fatalf("Lookup = %#v", got)
	}
	if got := cache.Lookup(context.Background(), "   ", 0.6); len(got) != 0 {
		t.Fatalf("blank Lookup = %#v", got)
	}
}

func TestUpsertLastWriteWins(t *testing.T) {
	cache := newCache(t, namecache.Options{})
	ctx := context.Background()

	if err := cache.Store(ctx, namecache.Entry{ID: "old", Name: "Pikachu", SetName: "Base", Rarity: "Common"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := cache.Store(ctx, namecache.Entry{ID: "new", Name: "Pikachu", SetName: "Base", Rarity: "Promo"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if n, _ := cache.Count(ctx); n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
	if old, _ := cache.Get(ctx, "old"); old != nil {
		t.Fatalf("expected old row replaced, got %#v", old)
	}
	got, err := cache.Get(ctx, "new")
	if err != nil || got == nil || got.Rarity != "Promo" || got.LastUpdated.IsZero() {
		t.Fatalf("Get = %#v, %v", got, err)
	}

	n, err := cache.Upsert(ctx, []namecache.Entry{{ID: "", Name: "Nameless"}, {ID: "x", Name: " "}})
	if err != nil || n != 0 {
		t.Fatalf("Upsert invalid = %d, %v", n, err)
	}
}

func TestNamesAndClear(t *testing.T) {
	cache := newCache(t, namecache.Options{})
	ctx := context.Background()
	seed(t, cache)
	_ = cache.Store(ctx, namecache.Entry{ID: "jungle-60", Name: "Pikachu", SetName: "Jungle"})

	names, err := cache.Names(ctx)
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	want := []string{"Charizard", "Pichu", "Pikachu", "Pikachu V", "Raichu"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names = %v, want %v", names, want)
		}
	}

	removed, err := cache.Clear(ctx)
	if err != nil || removed != 6 {
		t.Fatalf("Clear = %d, %v", removed, err)
	}
	if n, _ := cache.Count(ctx); n != 0 {
		t.Fatalf("Count after clear = %d", n)
	}
}

func TestLookupDegradesWhenStoreFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenLearningDB(t, cfg)
	cache := namecache.New(db, namecache.Options{}, logging.NewNop())
	db.Close()
	if got := cache.Lookup(context.Background(), "pikachu", 0.6); got != nil {
		t.Fatalf("expected nil, got %#v", got)
	}
}
