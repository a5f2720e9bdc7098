package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the storage root and bind address configuration.
type Paths struct {
	StorageRoot string `toml:"storage_root"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token by the operator API.
	APIToken string `toml:"api_token"`
}

// Catalog contains configuration for the Pokémon TCG API and reference image downloads.
type Catalog struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	UserAgent         string  `toml:"user_agent"`
	PageSize          int     `toml:"page_size"`
	RequestTimeout    int     `toml:"request_timeout"`
	FetchTimeout      int     `toml:"fetch_timeout"`
	MaxRetries        int     `toml:"max_retries"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Matching contains thresholds for the perceptual hash matcher and arbitration.
type Matching struct {
	// HashThreshold is the largest Hamming distance accepted as a match.
	HashThreshold int `toml:"hash_threshold"`
	// ImageConfidenceFloor is the hash confidence (0-100) a match must exceed
	// before it outranks the text signal.
	ImageConfidenceFloor float64 `toml:"image_confidence_floor"`
}

// Learning contains thresholds for the pattern learner, name cache, and correction ledger.
type Learning struct {
	FuzzyThreshold       float64 `toml:"fuzzy_threshold"`
	FuzzyLimit           int     `toml:"fuzzy_limit"`
	PatternMinConfidence float64 `toml:"pattern_min_confidence"`
	PatternFuzzyFloor    float64 `toml:"pattern_fuzzy_floor"`
	CorrectionHistory    int     `toml:"correction_history"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for cardscan.
//
// Configuration sections by subsystem:
//   - Paths: storage root for the databases, log directory, operator API bind
//   - Catalog: remote card catalog access and reference image downloads
//   - Matching: perceptual hash thresholds
//   - Learning: pattern learner and fuzzy name cache thresholds
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Catalog  Catalog  `toml:"catalog"`
	Matching Matching `toml:"matching"`
	Learning Learning `toml:"learning"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cardscan/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/cardscan/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cardscan.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the storage root and log directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StorageRoot, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CatalogDBPath returns the hash catalog database location.
func (c *Config) CatalogDBPath() string {
	return filepath.Join(c.Paths.StorageRoot, "catalog.db")
}

// LearningDBPath returns the database shared by the pattern learner, name
// cache, correction ledger, and scan statistics.
func (c *Config) LearningDBPath() string {
	return filepath.Join(c.Paths.StorageRoot, "learning.db")
}

// BuildLockPath returns the advisory lock file guarding catalog builds.
func (c *Config) BuildLockPath() string {
	return filepath.Join(c.Paths.StorageRoot, "catalog.build.lock")
}

// RequestTimeout returns the catalog API request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Catalog.RequestTimeout) * time.Second
}

// FetchTimeout returns the per-image download timeout used while building the catalog.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Catalog.FetchTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
