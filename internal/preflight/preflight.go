package preflight

import (
	"context"

	"cardscan/internal/config"
	"cardscan/internal/storage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every preflight check for the given config. The remote
// catalog check is skipped when offline is set.
func RunAll(ctx context.Context, cfg *config.Config, offline bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Storage root", cfg.Paths.StorageRoot),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	results = append(results,
		CheckDatabase("Catalog database", cfg.CatalogDBPath(), storage.SchemaCatalog),
		CheckDatabase("Learning database", cfg.LearningDBPath(), storage.SchemaLearning),
		CheckCatalogPopulated(ctx, cfg.CatalogDBPath()),
	)

	if !offline {
		results = append(results, CheckCatalogAPI(ctx, cfg.Catalog.BaseURL, cfg.Catalog.APIKey, cfg.Catalog.UserAgent))
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
