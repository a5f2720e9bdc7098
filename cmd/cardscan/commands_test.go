package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"cardscan/internal/catalog"
	"cardscan/internal/identify"
	"cardscan/internal/preflight"
	"cardscan/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.cfg.CatalogDBPath())

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
}

func TestCatalogBuildThenMatch(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"catalog", "build", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog build: %v", err)
	}
	var result catalog.BuildResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode build result %q: %v", out, err)
	}
	if result.Added != 2 || result.Failed != 0 {
		t.Fatalf("unexpected build result %+v", result)
	}

	out, _, err = runCLI(t, []string{"catalog", "build"}, env.configPath)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	requireContains(t, out, "Skipped (already present)")

	out, _, err = runCLI(t, []string{"catalog", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog stats: %v", err)
	}
	requireContains(t, out, "Cards")

	imagePath := filepath.Join(t.TempDir(), "query.png")
	if err := os.WriteFile(imagePath, testsupport.PNG(t, testsupport.Gradient(60, 84, 1)), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	out, _, err = runCLI(t, []string{"match", imagePath}, env.configPath)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	requireContains(t, out, "base1-58")
	requireContains(t, out, "100%")

	out, _, err = runCLI(t, []string{"identify", "--image", imagePath, "--action", "confirm", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	var view identify.View
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.State != identify.StateConfirmed || view.Resolution == nil || view.Resolution.CardID != "base1-58" {
		t.Fatalf("unexpected session %+v", view)
	}

	if _, _, err := runCLI(t, []string{"catalog", "clear"}, env.configPath); err == nil {
		t.Fatal("expected clear without --yes to fail outside a terminal")
	}
	out, _, err = runCLI(t, []string{"catalog", "clear", "--yes"}, env.configPath)
	if err != nil {
		t.Fatalf("catalog clear: %v", err)
	}
	requireContains(t, out, "Removed 2 catalog entries")
}

func TestIdentifyCorrectionTeachesLearner(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"identify", "--text", "Xyz123"}, env.configPath)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	requireContains(t, out, "No reliable detection")
	requireContains(t, out, "Session left pending")

	out, _, err = runCLI(t, []string{"identify", "--text", "Xyz123", "--action", "correct", "--name", "Charizard"}, env.configPath)
	if err != nil {
		t.Fatalf("identify correct: %v", err)
	}
	requireContains(t, out, "Recorded correction: Charizard")

	out, _, err = runCLI(t, []string{"learn", "lookup", "Xyz123"}, env.configPath)
	if err != nil {
		t.Fatalf("learn lookup: %v", err)
	}
	requireContains(t, out, "Charizard (exact, confidence 1.00")

	out, _, err = runCLI(t, []string{"corrections", "Xyz123"}, env.configPath)
	if err != nil {
		t.Fatalf("corrections: %v", err)
	}
	requireContains(t, out, "Charizard")

	out, _, err = runCLI(t, []string{"identify", "--text", "Xyz123", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("identify after correction: %v", err)
	}
	var view identify.View
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Text.Name != "Charizard" || view.Text.Origin != identify.OriginLearned {
		t.Fatalf("expected learned candidate, got %+v", view.Text)
	}
}

func TestIdentifyTextFromStdin(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLIWithInput(t, []string{"identify", "--text-file", "-", "--json"}, env.configPath, "Pikachu\n60 HP\n")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	var view identify.View
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Recommendation.Source != identify.SourceText || view.Recommendation.Name != "Pikachu" {
		t.Fatalf("unexpected recommendation %+v", view.Recommendation)
	}
	if view.State != identify.StatePending {
		t.Fatalf("state = %s, want pending", view.State)
	}
}

func TestIdentifyRequiresInput(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"identify"}, env.configPath); err == nil {
		t.Fatal("expected an error without image or text")
	}
	if _, _, err := runCLI(t, []string{"identify", "--text", "Mew", "--action", "explode"}, env.configPath); err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}

func TestLearnRecordAndList(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, args := range [][]string{
		{"learn", "record", "Charizrd", "Charizard"},
		{"learn", "record", "Charizrd", "Charizard"},
		{"learn", "record", "Charizrd", "Charizard", "--failed"},
	} {
		if _, _, err := runCLI(t, args, env.configPath); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	out, _, err := runCLI(t, []string{"learn", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("learn list: %v", err)
	}
	requireContains(t, out, "Charizrd")
	requireContains(t, out, "0.67")

	out, _, err = runCLI(t, []string{"learn", "lookup", "Charizrd"}, env.configPath)
	if err != nil {
		t.Fatalf("learn lookup: %v", err)
	}
	requireContains(t, out, "Charizard (exact")
}

func TestSearchPopulatesCache(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"search", "Pikachu"}, env.configPath)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	requireContains(t, out, "base1-58")
	requireContains(t, out, "1 cards (exact search), 1 cached")

	out, _, err = runCLI(t, []string{"cache", "count"}, env.configPath)
	if err != nil {
		t.Fatalf("cache count: %v", err)
	}
	requireContains(t, out, "1 cached cards")

	out, _, err = runCLI(t, []string{"cache", "lookup", "Pikachv"}, env.configPath)
	if err != nil {
		t.Fatalf("cache lookup: %v", err)
	}
	requireContains(t, out, "Pikachu")
}

func TestStatsAndExport(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"correct", "Mewtw0", "Mewtwo"}, env.configPath); err != nil {
		t.Fatalf("correct: %v", err)
	}
	out, _, err := runCLI(t, []string{"stats", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var view statsView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if view.Summary.TotalScans != 1 || view.Summary.Corrections != 1 || view.Summary.LearnedPatterns != 1 {
		t.Fatalf("unexpected stats %+v", view.Summary)
	}
	if view.ByKind["correction"] != 1 || len(view.Recent) != 1 {
		t.Fatalf("unexpected breakdown %+v", view)
	}

	out, _, err = runCLI(t, []string{"stats", "export"}, env.configPath)
	if err != nil {
		t.Fatalf("stats export: %v", err)
	}
	requireContains(t, out, "=== Learning System Statistics ===")
	requireContains(t, out, "Success Rate: 100.0%")
}

func TestDoctorReportsEmptyCatalogUntilBuilt(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err == nil {
		t.Fatal("expected doctor to fail on an empty catalog")
	}
	requireContains(t, out, "empty (run cardscan catalog build)")
	requireContains(t, err.Error(), "1 of 6 checks failed")

	if _, _, err := runCLI(t, []string{"catalog", "build"}, env.configPath); err != nil {
		t.Fatalf("catalog build: %v", err)
	}
	out, _, err = runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor after build: %v\n%s", err, out)
	}
	requireContains(t, out, "2 cards across 1 sets")
	requireContains(t, out, "All checks passed")

	out, _, err = runCLI(t, []string{"doctor", "--offline", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor --offline: %v", err)
	}
	var results []preflight.Result
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode doctor output %q: %v", out, err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 offline checks, got %d", len(results))
	}
}
