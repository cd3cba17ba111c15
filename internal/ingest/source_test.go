package ingest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/rulecache"
)

type fakeLister struct {
	err   error
	rules []model.MerchantRule
	calls int
}

func (f *fakeLister) ListRules(context.Context) ([]model.MerchantRule, error) {
	f.calls++
	return f.rules, f.err
}

func newTestSource(t *testing.T, lister RuleLister, cachedAt time.Time, cached []model.MerchantRule, maxAge time.Duration, now time.Time) (*RuleSource, *rulecache.Cache, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	cache := rulecache.New(rulecache.NewMemoryStore(),
		rulecache.WithClock(func() time.Time { return cachedAt }),
		rulecache.WithLogger(quietLogger(&buf)))
	if cached != nil {
		_, err := cache.Save(cached)
		require.NoError(t, err)
	}

	src := NewRuleSource(lister, cache, maxAge, quietLogger(&buf))
	src.now = func() time.Time { return now }
	return src, cache, &buf
}

func TestRuleSource_FreshCache(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	lister := &fakeLister{rules: []model.MerchantRule{{ID: "live", SourceName: "X"}}}
	cached := []model.MerchantRule{{ID: "cached", SourceName: "Y"}}

	src, _, _ := newTestSource(t, lister, base, cached, time.Hour, base.Add(30*time.Minute))

	got, origin, err := src.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginCache, origin)
	assert.Equal(t, "cached", got[0].ID)
	assert.Zero(t, lister.calls)
}

func TestRuleSource_StaleCacheRefreshes(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	lister := &fakeLister{rules: []model.MerchantRule{{ID: "live", SourceName: "X"}}}
	cached := []model.MerchantRule{{ID: "cached", SourceName: "Y"}}

	src, cache, _ := newTestSource(t, lister, base, cached, time.Hour, base.Add(2*time.Hour))

	got, origin, err := src.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginLive, origin)
	assert.Equal(t, "live", got[0].ID)
	assert.Equal(t, 1, lister.calls)

	snap := cache.Load()
	require.NotNil(t, snap)
	assert.Equal(t, "live", snap.Rules[0].ID)
}

func TestRuleSource_NoMaxAgeAcceptsAnyAge(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	lister := &fakeLister{}
	src, _, _ := newTestSource(t, lister, base, []model.MerchantRule{{ID: "old", SourceName: "Y"}}, 0, base.AddDate(5, 0, 0))

	_, origin, err := src.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginCache, origin)
	assert.Zero(t, lister.calls)
}

func TestRuleSource_LiveFailureFallsBackToStale(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	lister := &fakeLister{err: errors.New("database locked")}

	src, _, buf := newTestSource(t, lister, base, []model.MerchantRule{{ID: "cached", SourceName: "Y"}}, time.Minute, base.Add(time.Hour))

	got, origin, err := src.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginStale, origin)
	assert.Equal(t, "cached", got[0].ID)
	assert.Contains(t, buf.String(), "using stale snapshot")
}

func TestRuleSource_LiveFailureWithoutCache(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	lister := &fakeLister{err: errors.New("database locked")}

	src, _, _ := newTestSource(t, lister, base, nil, time.Minute, base)

	_, _, err := src.Rules(context.Background())
	assert.ErrorContains(t, err, "database locked")
}

func TestRuleSource_NilCache(t *testing.T) {
	lister := &fakeLister{rules: []model.MerchantRule{{ID: "live", SourceName: "X"}}}
	src := NewRuleSource(lister, nil, time.Hour, nil)

	got, origin, err := src.Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginLive, origin)
	assert.Len(t, got, 1)
}

func TestRuleSource_Refresh(t *testing.T) {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	lister := &fakeLister{rules: []model.MerchantRule{{ID: "live", SourceName: "X"}}}
	src, cache, _ := newTestSource(t, lister, base, []model.MerchantRule{{ID: "cached", SourceName: "Y"}}, time.Hour, base)

	got, err := src.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "live", got[0].ID)
	assert.Equal(t, "live", cache.Load().Rules[0].ID)

	lister.err = errors.New("gone")
	_, err = src.Refresh(context.Background())
	assert.Error(t, err, "refresh must not fall back to the snapshot")
}
