// Package rulecache keeps a local snapshot of the rule table so imports can
// match without fetching every rule from storage first.
package rulecache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/tally/internal/model"
)

// DefaultKey is the store key used when none is given.
const DefaultKey = "rule_cache"

// Snapshot is a point-in-time copy of the rule table.
type Snapshot struct {
	Rules     model.RuleSet `json:"rules"`
	Timestamp int64         `json:"timestamp"`
}

// Time returns the snapshot time.
func (s Snapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Age returns how old the snapshot is at now.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Time())
}

// Cache reads and writes snapshots through a Store. Staleness is not
// enforced here; callers decide how old a snapshot may be.
type Cache struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	key    string
}

// Option configures a Cache.
type Option func(*Cache)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(c *Cache) {
		c.key = key
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger used for load failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a Cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		key:    DefaultKey,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save replaces the stored snapshot with rules stamped at the current time.
func (c *Cache) Save(rules []model.MerchantRule) (Snapshot, error) {
	if rules == nil {
		rules = []model.MerchantRule{}
	}
	snap := Snapshot{
		Timestamp: c.now().UnixMilli(),
		Rules:     rules,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to encode rule snapshot: %w", err)
	}
	if err := c.store.Set(c.key, string(data)); err != nil {
		return Snapshot{}, fmt.Errorf("failed to store rule snapshot: %w", err)
	}

	c.logger.Debug("saved rule snapshot", "rules", len(rules), "key", c.key)
	return snap, nil
}

// Load returns the stored snapshot, or nil when there is none or it cannot
// be decoded. A snapshot without a rules array counts as corrupt.
func (c *Cache) Load() *Snapshot {
	data, ok, err := c.store.Get(c.key)
	if err != nil {
		c.logger.Warn("failed to read rule snapshot", "key", c.key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var raw struct {
		Rules     json.RawMessage `json:"rules"`
		Timestamp int64           `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		c.logger.Warn("discarding unreadable rule snapshot", "key", c.key, "error", err)
		return nil
	}
	if rules := bytes.TrimSpace(raw.Rules); len(rules) == 0 || rules[0] != '[' {
		c.logger.Warn("discarding rule snapshot without a rules array", "key", c.key)
		return nil
	}

	var rules model.RuleSet
	if err := json.Unmarshal(raw.Rules, &rules); err != nil {
		c.logger.Warn("discarding rule snapshot with invalid rules", "key", c.key, "error", err)
		return nil
	}

	return &Snapshot{Timestamp: raw.Timestamp, Rules: rules}
}
