package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/ingest"
	"github.com/Veraticus/tally/internal/model"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <descriptor>",
		Short: "Show how a descriptor would be categorized",
		Long: `Run one descriptor through the noise filters and the rule table without
saving anything. Useful for checking a new rule before importing.

Examples:
  tally match "BS TOPDANMARK - EN DEL AF IF FO"
  tally match --amount "-3.126,38" --date 13.01.25 "MC/VISA DK K BYENS BRØDHUS A"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMatch,
	}

	cmd.Flags().String("amount", "", "raw amount to parse alongside the descriptor")
	cmd.Flags().String("date", "", "raw date to parse alongside the descriptor")

	return cmd
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rawAmount, _ := cmd.Flags().GetString("amount")
	rawDate, _ := cmd.Flags().GetString("date")

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	source, err := initRuleSource(settings, store)
	if err != nil {
		return err
	}
	ruleSet, _, err := source.Rules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	matcher, err := initMatcher(ctx, settings, store, ruleSet)
	if err != nil {
		return err
	}

	txn := ingest.NewPipeline(matcher, pipelineConfig(settings)).Process(ctx, model.RawRecord{
		RawAmount:     rawAmount,
		RawDate:       rawDate,
		RawDescriptor: strings.Join(args, " "),
	})

	lines := []string{
		"Descriptor:  " + txn.RawDescriptor,
		"Clean:       " + txn.CleanDescriptor,
		"Merchant:    " + txn.MerchantName,
	}
	if txn.Matched {
		lines = append(lines,
			"Category:    "+cli.CategoryLabel(txn.Category, txn.SubCategory),
			fmt.Sprintf("Confidence:  %.1f", txn.Confidence),
			"Rule:        "+txn.RuleID)
	} else {
		lines = append(lines, cli.FormatWarning("No rule matched"))
	}
	if rawAmount != "" {
		lines = append(lines, "Amount:      "+txn.Amount.StringFixed(2))
	}
	if rawDate != "" {
		lines = append(lines, "Date:        "+txn.Date)
	}

	fmt.Fprintln(os.Stdout, cli.RenderBox("Match", strings.Join(lines, "\n"))) //nolint:forbidigo // User-facing output
	return nil
}
