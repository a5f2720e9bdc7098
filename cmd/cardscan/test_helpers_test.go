package main

import (
	"bytes"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"cardscan/internal/config"
	"cardscan/internal/tcgapi"
	"cardscan/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	images     *httptest.Server
	api        *httptest.Server
}

// setupCLITestEnv writes a config whose catalog API is a test server listing
// two cards with downloadable images.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("POKEMONTCG_IO_API_KEY", "")
	t.Setenv("CARDSCAN_API_TOKEN", "")

	images := testsupport.ImageServer(t, map[string]image.Image{
		"p1.png": testsupport.Gradient(60, 84, 1),
		"c1.png": testsupport.Gradient(60, 84, 2),
	})
	cards := []tcgapi.Card{
		{ID: "base1-58", Name: "Pikachu", Number: "58", Rarity: "Common", Set: &tcgapi.Set{ID: "base1", Name: "Base"}, Images: &tcgapi.Images{Large: images.URL + "/p1.png"}},
		{ID: "base1-4", Name: "Charizard", Number: "4", Rarity: "Rare Holo", Set: &tcgapi.Set{ID: "base1", Name: "Base"}, Images: &tcgapi.Images{Large: images.URL + "/c1.png"}},
	}
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cards" {
			http.NotFound(w, r)
			return
		}
		page := tcgapi.Page{Page: 1, TotalCount: len(cards)}
		q := r.URL.Query().Get("q")
		switch {
		case q != "":
			for _, card := range cards {
				if strings.Contains(q, card.Name) {
					page.Data = append(page.Data, card)
				}
			}
		case r.URL.Query().Get("page") == "" || r.URL.Query().Get("page") == "1":
			page.Data = cards
		}
		page.Count = len(page.Data)
		page.PageSize = len(page.Data)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(api.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(api.URL))
	cfg.Logging.Level = "error"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, images: images, api: api}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, args, configPath, "")
}

func runCLIWithInput(t *testing.T, args []string, configPath, input string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(input))
	flags := []string{"--log-level", "error"}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
