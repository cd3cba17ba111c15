package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/rules"
)

func rulesLearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn <hash>",
		Short: "Create a rule from a pending transaction",
		Long: `Turn a categorization decision for a pending transaction into a fuzzy
rule so future imports of the same merchant match on their own.

The transaction is named by its hash or any unique prefix of it, as shown
by 'tally pending'. Without --category the stored suggestion is accepted.

Examples:
  tally rules learn 3f2a9c --category Groceries
  tally rules learn 3f2a9c`,
		Args: cobra.ExactArgs(1),
		RunE: runRulesLearn,
	}

	cmd.Flags().String("category", "", "category to assign (default: the stored suggestion)")
	cmd.Flags().String("sub", "", "sub-category to assign")

	return cmd
}

func runRulesLearn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	category, _ := cmd.Flags().GetString("category")
	sub, _ := cmd.Flags().GetString("sub")

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	hash, err := store.ResolveHash(ctx, args[0])
	switch {
	case errors.Is(err, common.ErrNotFound):
		return common.NewUserError("no transaction with hash "+args[0], err)
	case errors.Is(err, common.ErrAmbiguous):
		return common.NewUserError("hash prefix "+args[0]+" matches several transactions", err)
	case err != nil:
		return err
	}
	txn, err := store.GetTransaction(ctx, hash)
	if err != nil {
		return err
	}

	var rule model.MerchantRule
	switch {
	case strings.TrimSpace(category) != "":
		var subCategory *string
		if sub = strings.TrimSpace(sub); sub != "" {
			subCategory = &sub
		}
		rule, err = rules.SuggestRule(txn.CleanDescriptor, category, subCategory)
	case txn.Suggestion != nil:
		rule, err = rules.FromSuggestion(txn.CleanDescriptor, *txn.Suggestion)
	default:
		return common.NewUserError("transaction has no suggestion; pass --category", nil)
	}
	if err != nil {
		return common.NewUserError("cannot build a rule from "+fmt.Sprintf("%q", txn.CleanDescriptor), err)
	}

	if err := store.CreateRule(ctx, &rule); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	if err := refreshRuleCache(cmd, settings, store); err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Learned %q as %s", rule.CleanSourceName, cli.CategoryLabel(rule.AutoCategory, rule.AutoSubCategory)))) //nolint:forbidigo // User-facing output
	return nil
}
