package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/amount"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/datefmt"
	"github.com/Veraticus/tally/internal/enrich"
	"github.com/Veraticus/tally/internal/ingest"
	"github.com/Veraticus/tally/internal/merchant"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/rulecache"
	"github.com/Veraticus/tally/internal/rules"
	"github.com/Veraticus/tally/internal/storage"
)

func loadSettings() (*config.Settings, error) {
	return config.Load(viper.GetViper())
}

// initStorage opens and migrates the database.
func initStorage(ctx context.Context, s *config.Settings) (*storage.SQLiteStorage, error) {
	store, err := storage.Open(ctx, s.Database.Path)
	if errors.Is(err, common.ErrDatabaseCorrupted) {
		return nil, common.NewUserError(fmt.Sprintf("%s is damaged or is not a tally database", s.Database.Path), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func closeStorage(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		common.LogError(err, "Failed to close storage", common.Fields{"path": store.Path()})
	}
}

// initRuleCache keeps the snapshot in cache.dir, or in the database's
// key/value table when no directory is configured. A shared cache.dir holds
// one snapshot per database.
func initRuleCache(s *config.Settings, store *storage.SQLiteStorage) (*rulecache.Cache, error) {
	if s.Cache.Dir == "" {
		return rulecache.New(store), nil
	}
	fs, err := rulecache.NewFileStore(s.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule cache: %w", err)
	}
	return rulecache.New(fs, rulecache.WithKey(ruleCacheKey(s.Database.Path))), nil
}

// ruleCacheKey derives a file-safe cache key from the database path.
func ruleCacheKey(dbPath string) string {
	if abs, err := filepath.Abs(dbPath); err == nil && dbPath != storage.MemoryPath {
		dbPath = abs
	}
	sum := sha256.Sum256([]byte(dbPath))
	return fmt.Sprintf("%s_%x", rulecache.DefaultKey, sum[:6])
}

func initRuleSource(s *config.Settings, store *storage.SQLiteStorage) (*ingest.RuleSource, error) {
	cache, err := initRuleCache(s, store)
	if err != nil {
		return nil, err
	}
	return ingest.NewRuleSource(store, cache, s.Cache.MaxAge, slog.Default()), nil
}

// initMatcher loads noise filters and builds a matcher over ruleSet.
func initMatcher(ctx context.Context, s *config.Settings, store *storage.SQLiteStorage, ruleSet model.RuleSet) (*rules.Matcher, error) {
	filters, err := store.ListNoiseFilters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load noise filters: %w", err)
	}

	normalizer := merchant.NewNormalizer(model.FilterPatterns(filters), slog.Default())
	var opts []rules.Option
	if s.Match.RankFuzzy {
		opts = append(opts, rules.WithSimilarityRanking())
	}
	return rules.NewMatcher(ruleSet.Sorted(), normalizer, opts...), nil
}

func pipelineConfig(s *config.Settings) ingest.Config {
	return ingest.Config{
		Amount:            amount.Parser{Convention: s.Parse.AmountConvention},
		Date:              datefmt.Parser{YearPolicy: s.Parse.TwoDigitYear},
		LenientAmount:     s.Parse.LenientAmount,
		DateFallbackToday: s.Parse.DateFallbackToday,
		Workers:           s.Import.Workers,
	}
}

// initEnricher returns nil when enrichment is disabled.
func initEnricher(s *config.Settings) (*enrich.Client, error) {
	if !s.Enrich.Enabled {
		return nil, nil
	}
	return enrich.New(enrich.Config{
		BaseURL:  s.Enrich.BaseURL,
		APIKey:   s.Enrich.APIKey,
		Model:    s.Enrich.Model,
		Timeout:  s.Enrich.Timeout,
		CacheTTL: s.Enrich.CacheTTL,
		Retry:    common.RetryOptions{MaxAttempts: 3, MaxDelay: 5 * time.Second},

		RequestsPerMinute: s.Enrich.RequestsPerMinute,
	}, slog.Default())
}

// knownCategories lists the distinct categories used by the rule table.
func knownCategories(ruleSet model.RuleSet) []string {
	out := ruleSet.Categories()
	sort.Strings(out)
	return out
}
