package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/amount"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/datefmt"
)

func newViper(t *testing.T, overrides map[string]any) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(newViper(t, nil))
	require.NoError(t, err)

	assert.Equal(t, amount.Auto, s.Parse.AmountConvention)
	assert.Equal(t, datefmt.Pivot1950, s.Parse.TwoDigitYear)
	assert.False(t, s.Parse.LenientAmount)
	assert.False(t, s.Match.RankFuzzy)
	assert.Equal(t, 4, s.Import.Workers)
	assert.Equal(t, time.Hour, s.Cache.MaxAge)
	assert.Equal(t, 24*time.Hour, s.Enrich.CacheTTL)
	assert.Equal(t, 30*time.Second, s.Enrich.Timeout)
	assert.False(t, s.Enrich.Enabled)
	assert.Equal(t, 60, s.Enrich.RequestsPerMinute)
	assert.Equal(t, "info", s.Logging.Level)
	assert.True(t, strings.HasSuffix(s.Database.Path, filepath.Join(".config", "tally", "tally.db")))
	assert.False(t, strings.HasPrefix(s.Database.Path, "~"))
}

func TestLoad_Overrides(t *testing.T) {
	s, err := Load(newViper(t, map[string]any{
		KeyAmountConvention:  "comma",
		KeyTwoDigitYear:      "fixed2000",
		KeyLenientAmount:     true,
		KeyDateFallbackToday: true,
		KeyRankFuzzy:         true,
		KeyImportWorkers:     8,
		KeyCacheMaxAge:       "0",
		KeyDatabasePath:      ":memory:",
		KeyEnrichEnabled:     true,
		KeyEnrichAPIKey:      "sk-test",
		KeyEnrichBaseURL:     "http://localhost:8080/v1/",
	}))
	require.NoError(t, err)

	assert.Equal(t, amount.DecimalComma, s.Parse.AmountConvention)
	assert.Equal(t, datefmt.Fixed2000, s.Parse.TwoDigitYear)
	assert.True(t, s.Parse.LenientAmount)
	assert.True(t, s.Parse.DateFallbackToday)
	assert.True(t, s.Match.RankFuzzy)
	assert.Equal(t, 8, s.Import.Workers)
	assert.Zero(t, s.Cache.MaxAge)
	assert.Equal(t, ":memory:", s.Database.Path)
	assert.Equal(t, "http://localhost:8080/v1", s.Enrich.BaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		overrides map[string]any
		want      error
		name      string
	}{
		{name: "unknown convention", overrides: map[string]any{KeyAmountConvention: "roman"}, want: common.ErrInvalidConfig},
		{name: "unknown year policy", overrides: map[string]any{KeyTwoDigitYear: "1900"}, want: common.ErrInvalidConfig},
		{name: "zero workers", overrides: map[string]any{KeyImportWorkers: 0}, want: common.ErrInvalidConfig},
		{name: "bad duration", overrides: map[string]any{KeyCacheMaxAge: "soon"}, want: common.ErrInvalidConfig},
		{name: "negative duration", overrides: map[string]any{KeyEnrichCacheTTL: "-1h"}, want: common.ErrInvalidConfig},
		{name: "enrichment without key", overrides: map[string]any{KeyEnrichEnabled: true}, want: common.ErrMissingConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.overrides))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "parse:\n  amount_convention: point\nimport:\n  workers: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := newViper(t, nil)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, amount.DecimalPoint, s.Parse.AmountConvention)
	assert.Equal(t, 2, s.Import.Workers)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("TALLY_TEST_DIR", "/srv/data")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: home},
		{in: "~/tally.db", want: filepath.Join(home, "tally.db")},
		{in: "$TALLY_TEST_DIR/tally.db", want: "/srv/data/tally.db"},
		{in: "/abs/path", want: "/abs/path"},
		{in: "~other/x", want: "~other/x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
