package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
)

func pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List transactions no rule matched",
		Long: `List stored transactions that still need a category, oldest first,
together with any suggestion made during import. Use 'tally rules learn'
to turn a decision into a rule.`,
		RunE: runPending,
	}

	cmd.Flags().IntP("limit", "n", 50, "maximum number of transactions to show (0 for all)")

	return cmd
}

func runPending(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	total, pending, err := store.CountTransactions(ctx)
	if err != nil {
		return err
	}
	if pending == 0 {
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("All %d transactions are categorized", total))) //nolint:forbidigo // User-facing output
		return nil
	}

	txns, err := store.ListPending(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list pending transactions: %w", err)
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("%d of %d transactions need a category", pending, total))) //nolint:forbidigo // User-facing output
	if summary := issueSummary(txns); summary != "" {
		fmt.Println(cli.FormatWarning(summary)) //nolint:forbidigo // User-facing output
	}
	if err := cli.RenderTransactions(os.Stdout, txns); err != nil {
		return err
	}
	if len(txns) < pending {
		fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("... %d more, use --limit 0 to see all", pending-len(txns)))) //nolint:forbidigo // User-facing output
	}
	return nil
}

// issueSummary counts parse problems among the listed transactions. Those
// need fixing at the source rather than a new rule.
func issueSummary(txns []model.ParsedTransaction) string {
	var amounts, dates int
	for i := range txns {
		if txns[i].HasIssue(model.IssueAmountUnparsed) {
			amounts++
		}
		if txns[i].HasIssue(model.IssueDateUnparsed) {
			dates++
		}
	}

	var parts []string
	if amounts > 0 {
		parts = append(parts, fmt.Sprintf("%d with unreadable amounts", amounts))
	}
	if dates > 0 {
		parts = append(parts, fmt.Sprintf("%d with unreadable dates", dates))
	}
	return strings.Join(parts, ", ")
}
