package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/storage"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or refresh the rule snapshot",
		Long: `Imports read rules from a local snapshot of the rule table and fall back
to the database when the snapshot is missing, unreadable or older than
cache.max_age. Rule edits made through tally refresh it automatically.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the age and size of the rule snapshot",
		RunE:  runCacheShow,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the rule snapshot from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := initStorage(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			return refreshRuleCache(cmd, settings, store)
		},
	})

	return cmd
}

func runCacheShow(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := initStorage(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	cache, err := initRuleCache(settings, store)
	if err != nil {
		return err
	}

	location := settings.Cache.Dir
	if location == "" {
		location = store.Path() + " (key/value table)"
	}

	snap := cache.Load()
	if snap == nil {
		fmt.Println(cli.FormatWarning("No usable rule snapshot at " + location)) //nolint:forbidigo // User-facing output
		return nil
	}

	age := snap.Age(time.Now()).Round(time.Second)
	lines := []string{
		"Location:  " + location,
		fmt.Sprintf("Rules:     %d", len(snap.Rules)),
		"Saved:     " + snap.Time().Local().Format(time.DateTime),
		"Age:       " + age.String(),
	}
	switch {
	case settings.Cache.MaxAge <= 0:
		lines = append(lines, cli.SubtleStyle.Render("No max age configured"))
	case age > settings.Cache.MaxAge:
		lines = append(lines, cli.FormatWarning("Stale, next import reloads rules"))
	default:
		lines = append(lines, cli.FormatSuccess("Fresh"))
	}

	fmt.Println(cli.RenderBox("Rule snapshot", strings.Join(lines, "\n"))) //nolint:forbidigo // User-facing output
	return nil
}

// refreshRuleCache rewrites the snapshot from the live rule table.
func refreshRuleCache(cmd *cobra.Command, settings *config.Settings, store *storage.SQLiteStorage) error {
	source, err := initRuleSource(settings, store)
	if err != nil {
		return err
	}
	ruleSet, err := source.Refresh(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to refresh rule cache: %w", err)
	}
	slog.Debug("Refreshed rule snapshot", "rules", len(ruleSet))
	return nil
}
