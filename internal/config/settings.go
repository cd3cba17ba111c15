package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/amount"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/datefmt"
)

// Configuration keys.
const (
	KeyDatabasePath      = "database.path"
	KeyCacheDir          = "cache.dir"
	KeyCacheMaxAge       = "cache.max_age"
	KeyAmountConvention  = "parse.amount_convention"
	KeyTwoDigitYear      = "parse.two_digit_year"
	KeyLenientAmount     = "parse.lenient_amount"
	KeyDateFallbackToday = "parse.date_fallback_today"
	KeyRankFuzzy         = "match.rank_fuzzy"
	KeyImportWorkers     = "import.workers"
	KeyEnrichEnabled     = "enrich.enabled"
	KeyEnrichBaseURL     = "enrich.base_url"
	KeyEnrichAPIKey      = "enrich.api_key"
	KeyEnrichModel       = "enrich.model"
	KeyEnrichTimeout     = "enrich.timeout"
	KeyEnrichCacheTTL    = "enrich.cache_ttl"
	KeyEnrichRPM         = "enrich.requests_per_minute"
	KeyLogLevel          = "logging.level"
	KeyLogFormat         = "logging.format"
)

// Settings is the resolved configuration for one tally invocation.
type Settings struct {
	Database DatabaseSettings
	Cache    CacheSettings
	Parse    ParseSettings
	Match    MatchSettings
	Import   ImportSettings
	Enrich   EnrichSettings
	Logging  LoggingSettings
}

// DatabaseSettings locates the SQLite database.
type DatabaseSettings struct {
	Path string
}

// CacheSettings controls the on-disk rule snapshot.
type CacheSettings struct {
	Dir    string
	MaxAge time.Duration
}

// ParseSettings controls amount and date parsing.
type ParseSettings struct {
	AmountConvention  amount.Convention
	TwoDigitYear      datefmt.YearPolicy
	LenientAmount     bool
	DateFallbackToday bool
}

// MatchSettings controls the rule matcher.
type MatchSettings struct {
	RankFuzzy bool
}

// ImportSettings controls batch processing.
type ImportSettings struct {
	Workers int
}

// EnrichSettings configures the optional categorization service.
type EnrichSettings struct {
	BaseURL  string
	APIKey   string
	Model    string
	Timeout           time.Duration
	CacheTTL          time.Duration
	RequestsPerMinute int
	Enabled           bool
}

// LoggingSettings is handed to common.SetupLogger.
type LoggingSettings struct {
	Level  string
	Format string
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	dir := Dir()
	v.SetDefault(KeyDatabasePath, filepath.Join(dir, AppName+".db"))
	v.SetDefault(KeyCacheDir, filepath.Join(dir, "cache"))
	v.SetDefault(KeyCacheMaxAge, "1h")
	v.SetDefault(KeyAmountConvention, amount.Auto.String())
	v.SetDefault(KeyTwoDigitYear, datefmt.Pivot1950.String())
	v.SetDefault(KeyLenientAmount, false)
	v.SetDefault(KeyDateFallbackToday, false)
	v.SetDefault(KeyRankFuzzy, false)
	v.SetDefault(KeyImportWorkers, 4)
	v.SetDefault(KeyEnrichEnabled, false)
	v.SetDefault(KeyEnrichBaseURL, "https://api.openai.com/v1")
	v.SetDefault(KeyEnrichAPIKey, "")
	v.SetDefault(KeyEnrichModel, "gpt-4o-mini")
	v.SetDefault(KeyEnrichTimeout, "30s")
	v.SetDefault(KeyEnrichCacheTTL, "24h")
	v.SetDefault(KeyEnrichRPM, 60)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// Load resolves Settings from v. Enum values are validated here so a typo
// in the config file fails before any file is read.
func Load(v *viper.Viper) (*Settings, error) {
	convention, err := amount.ParseConvention(v.GetString(KeyAmountConvention))
	if err != nil {
		return nil, invalid(KeyAmountConvention, err)
	}
	years, err := datefmt.ParseYearPolicy(v.GetString(KeyTwoDigitYear))
	if err != nil {
		return nil, invalid(KeyTwoDigitYear, err)
	}

	workers := v.GetInt(KeyImportWorkers)
	if workers < 1 {
		return nil, invalid(KeyImportWorkers, fmt.Errorf("must be at least 1, got %d", workers))
	}

	durations := map[string]time.Duration{}
	for _, key := range []string{KeyCacheMaxAge, KeyEnrichTimeout, KeyEnrichCacheTTL} {
		d, err := duration(v, key)
		if err != nil {
			return nil, err
		}
		durations[key] = d
	}

	s := &Settings{
		Database: DatabaseSettings{Path: expandStorePath(v.GetString(KeyDatabasePath))},
		Cache: CacheSettings{
			Dir:    ExpandPath(v.GetString(KeyCacheDir)),
			MaxAge: durations[KeyCacheMaxAge],
		},
		Parse: ParseSettings{
			AmountConvention:  convention,
			TwoDigitYear:      years,
			LenientAmount:     v.GetBool(KeyLenientAmount),
			DateFallbackToday: v.GetBool(KeyDateFallbackToday),
		},
		Match:  MatchSettings{RankFuzzy: v.GetBool(KeyRankFuzzy)},
		Import: ImportSettings{Workers: workers},
		Enrich: EnrichSettings{
			Enabled:  v.GetBool(KeyEnrichEnabled),
			BaseURL:  strings.TrimRight(v.GetString(KeyEnrichBaseURL), "/"),
			APIKey:   v.GetString(KeyEnrichAPIKey),
			Model:    v.GetString(KeyEnrichModel),
			Timeout:  durations[KeyEnrichTimeout],
			CacheTTL: durations[KeyEnrichCacheTTL],

			RequestsPerMinute: v.GetInt(KeyEnrichRPM),
		},
		Logging: LoggingSettings{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}

	if s.Enrich.Enabled && s.Enrich.APIKey == "" {
		return nil, fmt.Errorf("%w: %s is required when %s is set", common.ErrMissingConfig, KeyEnrichAPIKey, KeyEnrichEnabled)
	}
	return s, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, invalid(key, err)
	}
	if d < 0 {
		return 0, invalid(key, fmt.Errorf("negative duration %s", d))
	}
	return d, nil
}

// expandStorePath leaves the in-memory database name alone.
func expandStorePath(path string) string {
	if path == ":memory:" {
		return path
	}
	return ExpandPath(path)
}

func invalid(key string, err error) error {
	return fmt.Errorf("%w: %s: %w", common.ErrInvalidConfig, key, err)
}
