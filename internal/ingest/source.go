package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/rulecache"
)

// RuleLister fetches the authoritative rule table in table order.
type RuleLister interface {
	ListRules(ctx context.Context) ([]model.MerchantRule, error)
}

// Origin says where a RuleSource answer came from.
type Origin string

// Rule origins.
const (
	OriginCache Origin = "cache"
	OriginLive  Origin = "live"
	OriginStale Origin = "stale-cache"
)

// RuleSource serves rules from the snapshot cache while it is fresh and
// from the live table otherwise, refreshing the cache on every live fetch.
// When the live fetch fails, any snapshot is used regardless of age.
type RuleSource struct {
	lister RuleLister
	cache  *rulecache.Cache
	logger *slog.Logger
	now    func() time.Time
	maxAge time.Duration
}

// NewRuleSource creates a RuleSource. A maxAge of zero accepts a snapshot
// of any age; a nil cache always reads live.
func NewRuleSource(lister RuleLister, cache *rulecache.Cache, maxAge time.Duration, logger *slog.Logger) *RuleSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleSource{
		lister: lister,
		cache:  cache,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// Rules returns the rule table and where it came from.
func (s *RuleSource) Rules(ctx context.Context) (model.RuleSet, Origin, error) {
	var snap *rulecache.Snapshot
	if s.cache != nil {
		snap = s.cache.Load()
	}

	if snap != nil && (s.maxAge <= 0 || snap.Age(s.now()) <= s.maxAge) {
		s.logger.Debug("using cached rules", "rules", len(snap.Rules), "age", snap.Age(s.now()))
		return snap.Rules, OriginCache, nil
	}

	return s.fetch(ctx, snap)
}

// Refresh fetches the live table and rewrites the snapshot.
func (s *RuleSource) Refresh(ctx context.Context) (model.RuleSet, error) {
	rules, _, err := s.fetch(ctx, nil)
	return rules, err
}

func (s *RuleSource) fetch(ctx context.Context, fallback *rulecache.Snapshot) (model.RuleSet, Origin, error) {
	live, err := s.lister.ListRules(ctx)
	if err != nil {
		if fallback != nil {
			s.logger.Warn("live rule fetch failed, using stale snapshot",
				"age", fallback.Age(s.now()),
				"error", err)
			return fallback.Rules, OriginStale, nil
		}
		return nil, "", fmt.Errorf("failed to fetch rules: %w", err)
	}

	if s.cache != nil {
		if _, err := s.cache.Save(live); err != nil {
			s.logger.Warn("failed to refresh rule snapshot", "error", err)
		}
	}
	return live, OriginLive, nil
}
