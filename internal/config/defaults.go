package config

const (
	defaultStorageRoot          = "~/.local/share/cardscan"
	defaultLogDir               = "~/.local/share/cardscan/logs"
	defaultAPIBind              = "127.0.0.1:7488"
	defaultCatalogBaseURL       = "https://api.pokemontcg.io/v2"
	defaultCatalogUserAgent     = "cardscan/dev"
	defaultCatalogPageSize      = 250
	defaultCatalogTimeout       = 30
	defaultFetchTimeout         = 10
	defaultCatalogMaxRetries    = 3
	defaultRequestsPerSecond    = 5
	defaultHashThreshold        = 15
	defaultImageConfidenceFloor = 50
	defaultFuzzyThreshold       = 0.6
	defaultFuzzyLimit           = 10
	defaultPatternMinConfidence = 0.5
	defaultPatternFuzzyFloor    = 0.7
	defaultCorrectionHistory    = 5
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StorageRoot: defaultStorageRoot,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Catalog: Catalog{
			BaseURL:           defaultCatalogBaseURL,
			UserAgent:         defaultCatalogUserAgent,
			PageSize:          defaultCatalogPageSize,
			RequestTimeout:    defaultCatalogTimeout,
			FetchTimeout:      defaultFetchTimeout,
			MaxRetries:        defaultCatalogMaxRetries,
			RequestsPerSecond: defaultRequestsPerSecond,
		},
		Matching: Matching{
			HashThreshold:        defaultHashThreshold,
			ImageConfidenceFloor: defaultImageConfidenceFloor,
		},
		Learning: Learning{
			FuzzyThreshold:       defaultFuzzyThreshold,
			FuzzyLimit:           defaultFuzzyLimit,
			PatternMinConfidence: defaultPatternMinConfidence,
			PatternFuzzyFloor:    defaultPatternFuzzyFloor,
			CorrectionHistory:    defaultCorrectionHistory,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
