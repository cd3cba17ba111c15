package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/tally/internal/model"
)

const none = "-"

// table writes aligned rows with a styled header and a rule line.
type table struct {
	tw  *tabwriter.Writer
	err error
}

func newTable(w io.Writer, headers ...string) *table {
	t := &table{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}

	styled := make([]string, len(headers))
	rules := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = HeaderStyle.Render(h)
		rules[i] = strings.Repeat("─", len(h))
	}
	t.row(styled...)
	t.row(rules...)
	return t
}

func (t *table) row(cells ...string) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintln(t.tw, strings.Join(cells, "\t"))
}

func (t *table) flush() error {
	if t.err != nil {
		return fmt.Errorf("failed to write table: %w", t.err)
	}
	if err := t.tw.Flush(); err != nil {
		return fmt.Errorf("failed to flush table: %w", err)
	}
	return nil
}

// RenderRules prints the rule table in match order.
func RenderRules(w io.Writer, rules []model.MerchantRule) error {
	t := newTable(w, "#", "ID", "Source name", "Clean name", "Mode", "Category")
	for _, r := range rules {
		t.row(
			fmt.Sprint(r.Position),
			SubtleStyle.Render(shortID(r.ID)),
			orNone(r.SourceName),
			orNone(r.CleanSourceName),
			string(modeOrDefault(r.MatchMode)),
			CategoryLabel(r.AutoCategory, r.AutoSubCategory),
		)
	}
	return t.flush()
}

// RenderFilters prints noise filters in application order.
func RenderFilters(w io.Writer, filters []model.NoiseFilter) error {
	t := newTable(w, "#", "Pattern")
	for _, f := range filters {
		t.row(fmt.Sprint(f.Position), fmt.Sprintf("%q", f.Pattern))
	}
	return t.flush()
}

// RenderTransactions prints parsed transactions with their review state.
func RenderTransactions(w io.Writer, txns []model.ParsedTransaction) error {
	t := newTable(w, "Hash", "Date", "Amount", "Merchant", "Category", "Conf.", "Review")
	for i := range txns {
		txn := &txns[i]
		t.row(
			SubtleStyle.Render(shortHash(txn.Hash)),
			orNone(txn.Date),
			txn.Amount.StringFixed(2),
			orNone(txn.MerchantName),
			CategoryLabel(txn.Category, txn.SubCategory),
			fmt.Sprintf("%.1f", txn.Confidence),
			review(txn),
		)
	}
	return t.flush()
}

// ImportSummary is what a finished import reports.
type ImportSummary struct {
	Files      int
	Records    int
	Matched    int
	Duplicates int
	Inserted   int
	Updated    int
	Review     int
	DryRun     bool
}

// RenderImportSummary prints a boxed summary of an import run.
func RenderImportSummary(w io.Writer, s ImportSummary) error {
	lines := []string{
		fmt.Sprintf("Files:       %d", s.Files),
		fmt.Sprintf("Records:     %d", s.Records),
		fmt.Sprintf("Matched:     %d", s.Matched),
		fmt.Sprintf("Duplicates:  %d", s.Duplicates),
	}
	if s.DryRun {
		lines = append(lines, SubtleStyle.Render("Dry run, nothing saved"))
	} else {
		lines = append(lines,
			fmt.Sprintf("Inserted:    %d", s.Inserted),
			fmt.Sprintf("Updated:     %d", s.Updated))
	}
	if s.Review > 0 {
		lines = append(lines, FormatWarning(fmt.Sprintf("%d need review", s.Review)))
	} else {
		lines = append(lines, FormatSuccess("Nothing to review"))
	}

	_, err := fmt.Fprintln(w, RenderBox("Import complete", strings.Join(lines, "\n")))
	return err
}

func review(txn *model.ParsedTransaction) string {
	if !txn.NeedsReview() {
		return SuccessStyle.Render(SuccessIcon)
	}
	issues := make([]string, 0, len(txn.Issues))
	for _, issue := range txn.Issues {
		issues = append(issues, string(issue))
	}
	out := strings.Join(issues, ",")
	if txn.Suggestion != nil {
		out += fmt.Sprintf(" (suggest %s)", CategoryLabel(txn.Suggestion.Category, txn.Suggestion.SubCategory))
	}
	return WarningStyle.Render(out)
}

// CategoryLabel joins a category and an optional sub-category.
func CategoryLabel(cat string, sub *string) string {
	if cat == "" {
		return none
	}
	if sub != nil && *sub != "" {
		return cat + " / " + *sub
	}
	return cat
}

func modeOrDefault(m model.MatchMode) model.MatchMode {
	if m == "" {
		return model.MatchFuzzy
	}
	return m
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return none
	}
	return s
}

func shortHash(hash string) string {
	if len(hash) > 10 {
		return hash[:10]
	}
	return orNone(hash)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
