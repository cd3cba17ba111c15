package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/importer"
	"github.com/Veraticus/tally/internal/ingest"
	"github.com/Veraticus/tally/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import and categorize bank exports",
		Long: `Read CSV, OFX or QFX exports, match every line against the rule table
and store the categorized transactions.

Records that could not be fully parsed or matched are flagged for review.
Importing the same file twice updates categories but never duplicates a
transaction.

Examples:
  tally import ~/Downloads/konto_2025-01.csv
  tally import --dry-run ~/Downloads/*.qfx
  tally import --date-col Bogført --amount-col Beløb --desc-col Tekst export.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().StringP("format", "f", "", "input format: csv or ofx (default: from file extension)")
	cmd.Flags().String("delimiter", "", "CSV delimiter (default: detected)")
	cmd.Flags().String("date-col", "", "CSV header of the date column")
	cmd.Flags().String("amount-col", "", "CSV header of the amount column")
	cmd.Flags().String("desc-col", "", "CSV header of the description column")
	cmd.Flags().BoolP("dry-run", "d", false, "show the result without saving")
	cmd.Flags().Bool("no-enrich", false, "skip category suggestions for unmatched records")
	cmd.Flags().Bool("show", false, "print every imported transaction")

	return cmd
}

type importOptions struct {
	format   importer.Format
	csv      importer.CSVOptions
	dryRun   bool
	noEnrich bool
	show     bool
}

func parseImportFlags(cmd *cobra.Command) (importOptions, error) {
	var opts importOptions

	formatFlag, _ := cmd.Flags().GetString("format")
	if formatFlag != "" {
		format, err := importer.ParseFormat(formatFlag)
		if err != nil {
			return opts, common.NewUserError("unknown --format "+formatFlag, err)
		}
		opts.format = format
	}

	delimiter, _ := cmd.Flags().GetString("delimiter")
	switch {
	case delimiter == `\t`:
		opts.csv.Delimiter = '\t'
	case utf8.RuneCountInString(delimiter) == 1:
		opts.csv.Delimiter, _ = utf8.DecodeRuneInString(delimiter)
	case delimiter != "":
		return opts, common.NewUserError("--delimiter must be a single character", nil)
	}

	columns := map[importer.Field]string{}
	for flag, field := range map[string]importer.Field{
		"date-col":   importer.FieldDate,
		"amount-col": importer.FieldAmount,
		"desc-col":   importer.FieldDescription,
	} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			columns[field] = v
		}
	}
	if len(columns) > 0 {
		opts.csv.Columns = columns
	}

	opts.dryRun, _ = cmd.Flags().GetBool("dry-run")
	opts.noEnrich, _ = cmd.Flags().GetBool("no-enrich")
	opts.show, _ = cmd.Flags().GetBool("show")
	return opts, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	opts, err := parseImportFlags(cmd)
	if err != nil {
		return err
	}
	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	handler := cli.NewInterruptHandler(os.Stderr, "Import canceled. Nothing was saved.")
	ctx, stop := handler.HandleInterrupts(cmd.Context())
	defer stop()

	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	source, err := initRuleSource(settings, store)
	if err != nil {
		return err
	}
	ruleSet, origin, err := source.Rules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	slog.Info("Loaded rules", "count", len(ruleSet), "origin", origin)

	matcher, err := initMatcher(ctx, settings, store, ruleSet)
	if err != nil {
		return err
	}

	var pipelineOpts []ingest.Option
	if !opts.noEnrich {
		client, err := initEnricher(settings)
		if err != nil {
			return err
		}
		if client != nil {
			defer client.Close()
			pipelineOpts = append(pipelineOpts, ingest.WithEnricher(client, knownCategories(ruleSet)))
		}
	}
	pipeline := ingest.NewPipeline(matcher, pipelineConfig(settings), pipelineOpts...)

	var records []model.RawRecord
	for _, path := range files {
		recs, err := importer.ReadFile(ctx, path, opts.format, opts.csv)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
		}
		slog.Info("Read file", "file", filepath.Base(path), "records", len(recs))
		records = append(records, recs...)
	}

	progress := cli.NewProgress(os.Stderr, len(records), "Categorizing")
	batch, err := pipeline.ProcessBatch(ctx, records, progress.Increment)
	if err != nil {
		if handler.WasInterrupted() {
			return common.NewUserError("import interrupted", err)
		}
		return fmt.Errorf("failed to process records: %w", err)
	}
	progress.Finish()

	summary := cli.ImportSummary{
		Files:      len(files),
		Records:    len(records),
		Matched:    batch.Matched(),
		Duplicates: batch.Duplicates,
		Review:     countReview(batch.Transactions),
		DryRun:     opts.dryRun,
	}

	if !opts.dryRun {
		result, err := store.SaveTransactions(ctx, batch.Transactions)
		if err != nil {
			return fmt.Errorf("failed to save transactions: %w", err)
		}
		summary.Inserted = result.Inserted
		summary.Updated = result.Updated
	}

	if opts.show || opts.dryRun {
		if err := cli.RenderTransactions(os.Stdout, batch.Transactions); err != nil {
			return err
		}
		fmt.Println() //nolint:forbidigo // User-facing output
	}
	return cli.RenderImportSummary(os.Stdout, summary)
}

// expandFiles resolves globs and plain paths into a list of files.
func expandFiles(args []string) ([]string, error) {
	var files []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, common.NewUserError("invalid pattern "+pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err != nil {
				slog.Warn("No files found matching pattern", "pattern", pattern)
				continue
			}
			matches = []string{pattern}
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, common.NewUserError("no files found to import", common.ErrNoRecords)
	}
	return files, nil
}

func countReview(txns []model.ParsedTransaction) int {
	n := 0
	for i := range txns {
		if txns[i].NeedsReview() {
			n++
		}
	}
	return n
}
