package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
)

func filtersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Manage noise filters",
		Long: `Noise filters are literal strings cut out of every descriptor before rule
matching, such as card numbers or "Nota nr.". Matching ignores case.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List noise filters in the order they are applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			filters, err := store.ListNoiseFilters(ctx)
			if err != nil {
				return fmt.Errorf("failed to list noise filters: %w", err)
			}
			if len(filters) == 0 {
				fmt.Println(cli.InfoStyle.Render("No noise filters. Use 'tally filters add' to create one.")) //nolint:forbidigo // User-facing output
				return nil
			}
			return cli.RenderFilters(os.Stdout, filters)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <pattern>",
		Short: "Add a noise filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			filter, err := store.AddNoiseFilter(ctx, args[0])
			if errors.Is(err, common.ErrDuplicateEntry) {
				return common.NewUserError(fmt.Sprintf("filter %q already exists", args[0]), err)
			}
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Added filter %q at position %d", filter.Pattern, filter.Position))) //nolint:forbidigo // User-facing output
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <pattern>",
		Short: "Delete a noise filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			if err := store.DeleteNoiseFilter(ctx, args[0]); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError(fmt.Sprintf("no filter %q", args[0]), err)
				}
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Deleted filter %q", args[0]))) //nolint:forbidigo // User-facing output
			return nil
		},
	})

	return cmd
}
