// Package ingest turns raw import records into categorized transactions.
package ingest

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/tally/internal/amount"
	"github.com/Veraticus/tally/internal/datefmt"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/rules"
)

// DefaultWorkers is the batch concurrency when Config.Workers is unset.
const DefaultWorkers = 4

// Enricher guesses a category for a descriptor no rule matched. A nil
// suggestion with a nil error means the enricher has no opinion.
type Enricher interface {
	Suggest(ctx context.Context, clean string, categories []string) (*model.Suggestion, error)
}

// Config selects parsing policy for a pipeline.
type Config struct {
	Amount amount.Parser
	Date   datefmt.Parser

	// LenientAmount turns unparseable amounts into zero instead of flagging them.
	LenientAmount bool
	// DateFallbackToday uses today's date for unparseable dates instead of flagging them.
	DateFallbackToday bool

	Workers int
}

// Pipeline parses, normalizes and matches records. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	matcher    *rules.Matcher
	enricher   Enricher
	logger     *slog.Logger
	categories []string
	cfg        Config
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEnricher asks e for a suggestion on every unmatched record.
// categories is the list the enricher should choose from.
func WithEnricher(e Enricher, categories []string) Option {
	return func(p *Pipeline) {
		p.enricher = e
		p.categories = categories
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates a pipeline around a prepared matcher.
func NewPipeline(matcher *rules.Matcher, cfg Config, opts ...Option) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	p := &Pipeline{
		matcher: matcher,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process converts one record. It never fails: problems are recorded as
// issues on the returned transaction.
func (p *Pipeline) Process(ctx context.Context, rec model.RawRecord) model.ParsedTransaction {
	txn := model.ParsedTransaction{
		RawDescriptor: rec.RawDescriptor,
		Source:        rec.Source,
	}

	if p.cfg.LenientAmount {
		txn.Amount = p.cfg.Amount.ParseOrZero(rec.RawAmount)
	} else if d, err := p.cfg.Amount.Parse(rec.RawAmount); err == nil {
		txn.Amount = d
	} else {
		txn.Issues = append(txn.Issues, model.IssueAmountUnparsed)
		p.logger.Debug("amount not parsed", "raw_amount", rec.RawAmount, "line", rec.Line, "error", err)
	}

	if p.cfg.DateFallbackToday {
		txn.Date = p.cfg.Date.ParseOrToday(rec.RawDate)
	} else if iso, err := p.cfg.Date.Parse(rec.RawDate); err == nil {
		txn.Date = iso
	} else {
		txn.Issues = append(txn.Issues, model.IssueDateUnparsed)
		p.logger.Debug("date not parsed", "raw_date", rec.RawDate, "line", rec.Line, "error", err)
	}

	res := p.matcher.Match(rec.RawDescriptor)
	txn.CleanDescriptor = res.CleanDescriptor
	txn.MerchantName = res.CleanName
	txn.Matched = res.Matched
	txn.Confidence = res.Confidence

	if res.Matched {
		txn.Category = res.Category
		txn.SubCategory = res.SubCategory
		txn.RuleID = res.RuleID
	} else {
		txn.Issues = append(txn.Issues, model.IssueUncategorized)
		txn.Suggestion = p.suggest(ctx, res.CleanDescriptor)
	}

	parseFailed := txn.HasIssue(model.IssueAmountUnparsed) || txn.HasIssue(model.IssueDateUnparsed)
	txn.Identity = rec.Identity(parseFailed)
	txn.Hash = txn.GenerateHash()
	return txn
}

func (p *Pipeline) suggest(ctx context.Context, clean string) *model.Suggestion {
	if p.enricher == nil || clean == "" {
		return nil
	}

	s, err := p.enricher.Suggest(ctx, clean, p.categories)
	if err != nil {
		p.logger.Warn("enrichment failed", "descriptor", clean, "error", err)
		return nil
	}
	if s == nil || strings.TrimSpace(s.Category) == "" {
		return nil
	}

	out := *s
	out.Confidence = clamp(out.Confidence)
	return &out
}

func clamp(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// Batch is the result of ProcessBatch.
type Batch struct {
	Transactions []model.ParsedTransaction
	Duplicates   int
}

// Matched returns how many transactions matched a rule.
func (b Batch) Matched() int {
	n := 0
	for _, t := range b.Transactions {
		if t.Matched {
			n++
		}
	}
	return n
}

// ProcessBatch converts records on a bounded worker group. Output order
// follows input order, and records with the same hash are collapsed to the
// first occurrence. onDone, if set, is called once per processed record
// and may be called from several goroutines at once.
func (p *Pipeline) ProcessBatch(ctx context.Context, recs []model.RawRecord, onDone func()) (Batch, error) {
	results := make([]model.ParsedTransaction, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i, rec := range recs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.Process(gctx, rec)
			if onDone != nil {
				onDone()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}

	batch := Batch{Transactions: make([]model.ParsedTransaction, 0, len(results))}
	seen := make(map[string]struct{}, len(results))
	for _, t := range results {
		if _, dup := seen[t.Hash]; dup {
			batch.Duplicates++
			continue
		}
		seen[t.Hash] = struct{}{}
		batch.Transactions = append(batch.Transactions, t)
	}

	p.logger.Info("processed batch",
		"records", len(recs),
		"transactions", len(batch.Transactions),
		"duplicates", batch.Duplicates,
		"matched", batch.Matched())

	return batch, nil
}
