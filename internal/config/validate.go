package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateLearning(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.StorageRoot == "" {
		return errors.New("paths.storage_root must be set")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if err := ensurePositive(map[string]int{
		"catalog.page_size":       c.Catalog.PageSize,
		"catalog.request_timeout": c.Catalog.RequestTimeout,
		"catalog.fetch_timeout":   c.Catalog.FetchTimeout,
	}); err != nil {
		return err
	}
	if c.Catalog.PageSize > 250 {
		return errors.New("catalog.page_size must not exceed 250")
	}
	if c.Catalog.MaxRetries < 0 {
		return errors.New("catalog.max_retries must be zero or positive")
	}
	if c.Catalog.RequestsPerSecond <= 0 {
		return errors.New("catalog.requests_per_second must be positive")
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.HashThreshold < 1 || c.Matching.HashThreshold > 64 {
		return errors.New("matching.hash_threshold must be between 1 and 64")
	}
	if c.Matching.ImageConfidenceFloor <= 0 || c.Matching.ImageConfidenceFloor > 100 {
		return errors.New("matching.image_confidence_floor must be greater than 0 and at most 100")
	}
	return nil
}

func (c *Config) validateLearning() error {
	ratios := []struct {
		key   string
		value float64
	}{
		{"learning.fuzzy_threshold", c.Learning.FuzzyThreshold},
		{"learning.pattern_min_confidence", c.Learning.PatternMinConfidence},
		{"learning.pattern_fuzzy_floor", c.Learning.PatternFuzzyFloor},
	}
	for _, r := range ratios {
		if r.value <= 0 || r.value > 1 {
			return fmt.Errorf("%s must be greater than 0 and at most 1", r.key)
		}
	}
	return ensurePositive(map[string]int{
		"learning.fuzzy_limit":        c.Learning.FuzzyLimit,
		"learning.correction_history": c.Learning.CorrectionHistory,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositive(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
