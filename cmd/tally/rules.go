package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage merchant rules",
		Long: `Merchant rules map descriptors onto a clean merchant name and a category.
Rules are tried in table order: exact rules first, then fuzzy rules.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesMoveCmd())
	cmd.AddCommand(rulesDeleteCmd())
	cmd.AddCommand(rulesLearnCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in match order",
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

			ruleSet, err := store.ListRules(ctx)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			if len(ruleSet) == 0 {
				fmt.Println(cli.InfoStyle.Render("No rules yet. Use 'tally rules add' to create one.")) //nolint:forbidigo // User-facing output
				return nil
			}

			fmt.Println(cli.FormatTitle("Merchant rules")) //nolint:forbidigo // User-facing output
			return cli.RenderRules(os.Stdout, ruleSet)
		},
	}
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule",
		Long: `Add a rule to the end of the table, or at --position.

Examples:
  tally rules add --source TOPDANMARK --category Insurance
  tally rules add --clean "Netto" --mode exact --category Groceries
  tally rules add --source "BYENS" --clean "Byens Brødhus" --category Food --sub Bakery`,
		RunE: runRulesAdd,
	}

	cmd.Flags().String("source", "", "descriptor text the rule looks for")
	cmd.Flags().String("clean", "", "clean merchant name")
	cmd.Flags().String("mode", "fuzzy", "match mode: exact or fuzzy")
	cmd.Flags().String("category", "", "category to assign (required)")
	cmd.Flags().String("sub", "", "sub-category to assign")
	cmd.Flags().Int("position", 0, "position in the rule table (default: last)")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	source, _ := cmd.Flags().GetString("source")
	clean, _ := cmd.Flags().GetString("clean")
	modeFlag, _ := cmd.Flags().GetString("mode")
	category, _ := cmd.Flags().GetString("category")
	sub, _ := cmd.Flags().GetString("sub")
	position, _ := cmd.Flags().GetInt("position")

	mode, err := model.ParseMatchMode(modeFlag)
	if err != nil {
		return common.NewUserError(err.Error(), err)
	}

	rule := model.MerchantRule{
		SourceName:      source,
		CleanSourceName: clean,
		MatchMode:       mode,
		AutoCategory:    category,
		Position:        position,
	}
	if sub = strings.TrimSpace(sub); sub != "" {
		rule.AutoSubCategory = &sub
	}
	if err := rule.Validate(); err != nil {
		return common.NewUserError("a rule needs --source or --clean", err)
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	if err := store.CreateRule(ctx, &rule); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	if err := refreshRuleCache(cmd, settings, store); err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Added rule %s at position %d", rule.ID, rule.Position))) //nolint:forbidigo // User-facing output
	return nil
}

func rulesMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <position>",
		Short: "Move a rule to another position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var position int
			if _, err := fmt.Sscanf(args[1], "%d", &position); err != nil {
				return common.NewUserError("position must be a number", err)
			}

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			if err := store.MoveRule(ctx, args[0], position); err != nil {
				return ruleError(args[0], err)
			}
			if err := refreshRuleCache(cmd, settings, store); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess("Moved rule " + args[0])) //nolint:forbidigo // User-facing output
			return nil
		},
	}
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
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

			rule, err := store.GetRule(ctx, args[0])
			if err != nil {
				return ruleError(args[0], err)
			}
			if err := store.DeleteRule(ctx, rule.ID); err != nil {
				return ruleError(rule.ID, err)
			}
			if err := refreshRuleCache(cmd, settings, store); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Deleted rule %s (%s -> %s)", //nolint:forbidigo // User-facing output
				rule.ID, rule.EffectiveName(), cli.CategoryLabel(rule.AutoCategory, rule.AutoSubCategory))))
			return nil
		},
	}
}

func ruleError(id string, err error) error {
	if errors.Is(err, common.ErrNotFound) {
		return common.NewUserError("no rule with id "+id, err)
	}
	return err
}
