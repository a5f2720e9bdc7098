package identify_test

import (
	"context"
	"testing"
	"time"

	"cardscan/internal/identify"
)

func TestRegistryLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := identify.NewRegistry()

	first := f.engine.Identify(ctx, identify.Capture{RawText: "Abra"})
	second := f.engine.Identify(ctx, identify.Capture{RawText: "Kadabra"})
	reg.Put(first)
	reg.Put(second)
	reg.Put(nil)

	if reg.Len() != 2 {
		t.Fatalf("Len = %d", reg.Len())
	}
	got, ok := reg.Get(first.ID())
	if !ok || got != first {
		t.Fatalf("Get = %v, %v", got, ok)
	}
	list := reg.List()
	if len(list) != 2 || list[0] != second {
		t.Fatalf("List should put newest first")
	}

	reg.Remove(first.ID())
	if _, ok := reg.Get(first.ID()); ok {
		t.Fatal("expected session removed")
	}

	// second was created a few clock ticks after 2024-06-01T09:00:00Z.
	if n := reg.Prune(second.CreatedAt().Add(30*time.Minute), time.Hour); n != 0 {
		t.Fatalf("Prune removed %d fresh sessions", n)
	}
	if n := reg.Prune(second.CreatedAt().Add(2*time.Hour), time.Hour); n != 1 {
		t.Fatalf("Prune removed %d, want 1", n)
	}
	if reg.Len() != 0 {
		t.Fatalf("Len after prune = %d", reg.Len())
	}
}
