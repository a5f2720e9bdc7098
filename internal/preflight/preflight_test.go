package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cardscan/internal/catalog"
	"cardscan/internal/storage"
	"cardscan/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDirectoryAccess_Empty(t *testing.T) {
	if result := CheckDirectoryAccess("test", " "); result.Passed {
		t.Fatal("expected failure for unset path")
	}
}

func TestCheckDatabase_CreatesAndReportsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learning.db")
	result := CheckDatabase("Learning database", path, storage.SchemaLearning)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "schema v") {
		t.Fatalf("expected schema version in detail, got %q", result.Detail)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
}

func TestCheckDatabase_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "catalog.db")
	if result := CheckDatabase("Catalog database", path, storage.SchemaCatalog); result.Passed {
		t.Fatal("expected failure when the parent directory is missing")
	}
}

func TestCheckCatalogPopulated(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	if result := CheckCatalogPopulated(ctx, cfg.CatalogDBPath()); result.Passed {
		t.Fatal("expected failure for empty catalog")
	}

	store := testsupport.MustOpenCatalog(t, cfg)
	if err := store.Upsert(ctx, catalog.Entry{CardID: "base1-58", Name: "Pikachu", SetCode: "base1", SetName: "Base", Downloaded: true}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	result := CheckCatalogPopulated(ctx, cfg.CatalogDBPath())
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result.Detail != "1 cards across 1 sets" {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckCatalogAPI_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cards" || r.URL.Query().Get("pageSize") != "1" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("X-Api-Key") != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckCatalogAPI(context.Background(), srv.URL+"/", "good-key", "cardscan-test")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckCatalogAPI_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"bad key", http.StatusForbidden, "auth failed"},
		{"rate limited", http.StatusTooManyRequests, "rate limited"},
		{"server error", http.StatusBadGateway, "502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			result := CheckCatalogAPI(context.Background(), srv.URL, "key", "")
			if result.Passed {
				t.Fatal("expected failure")
			}
			if !strings.Contains(result.Detail, tt.want) {
				t.Fatalf("detail %q does not mention %q", result.Detail, tt.want)
			}
		})
	}
}

func TestCheckCatalogAPI_MissingURL(t *testing.T) {
	if result := CheckCatalogAPI(context.Background(), "", "key", ""); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, false); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_Offline(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	results := RunAll(context.Background(), cfg, true)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Hash catalog" {
		t.Fatalf("expected only the empty catalog to fail, got %+v", failed)
	}
}

func TestRunAll_IncludesCatalogAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(srv.URL))
	results := RunAll(context.Background(), cfg, false)
	found := false
	for _, r := range results {
		if r.Name == "Card catalog API" {
			found = true
			if !r.Passed {
				t.Errorf("catalog API check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected catalog API check in results")
	}
}
