package model

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RawRecord is one untyped line handed over by an import step.
type RawRecord struct {
	RawAmount     string
	RawDate       string
	RawDescriptor string

	// ID is a stable identifier assigned by the source, such as an OFX FITID.
	ID string

	// Optional metadata for diagnostics
	Source string // File the record came from
	Line   string // Line number or statement id within Source
}

// Identity returns the key that separates this record from others with
// the same date, amount and descriptor. Source-assigned IDs win. Without
// one, records whose amount or date did not parse are keyed by their raw
// text and position so they are never merged with each other.
func (r RawRecord) Identity(parseFailed bool) string {
	switch {
	case r.ID != "":
		return "id:" + r.ID
	case parseFailed:
		return fmt.Sprintf("raw:%s:%s:%s:%s", r.Source, r.Line, r.RawAmount, r.RawDate)
	default:
		return ""
	}
}

// Issue flags a part of a parsed record that needs manual attention.
type Issue string

// Issue constants.
const (
	IssueAmountUnparsed Issue = "amount_unparsed"
	IssueDateUnparsed   Issue = "date_unparsed"
	IssueUncategorized  Issue = "uncategorized"
)

// Suggestion is a category guess from an external enrichment source.
// It is never applied without user confirmation.
type Suggestion struct {
	SubCategory *string `json:"sub_category,omitempty"`
	Category    string  `json:"category"`
	Source      string  `json:"source"`
	Confidence  float64 `json:"confidence"`
}

// ParsedTransaction is the canonical, categorized form of a RawRecord.
type ParsedTransaction struct {
	Amount          decimal.Decimal
	SubCategory     *string
	Suggestion      *Suggestion
	Date            string // YYYY-MM-DD, empty when the raw date could not be parsed
	RawDescriptor   string
	CleanDescriptor string
	MerchantName    string
	Category        string
	RuleID          string
	Hash            string
	Source          string
	Identity        string // Folded into Hash when set, see RawRecord.Identity
	Issues          []Issue
	Confidence      float64
	Matched         bool
}

// NeedsReview reports whether the record should go to manual triage.
func (t *ParsedTransaction) NeedsReview() bool {
	return len(t.Issues) > 0
}

// HasIssue reports whether the given issue was recorded.
func (t *ParsedTransaction) HasIssue(issue Issue) bool {
	for _, i := range t.Issues {
		if i == issue {
			return true
		}
	}
	return false
}

// GenerateHash creates a stable key for duplicate detection.
func (t *ParsedTransaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s",
		t.Date,
		t.Amount.StringFixed(2),
		strings.ToUpper(strings.TrimSpace(t.RawDescriptor)))
	if t.Identity != "" {
		data += ":" + t.Identity
	}
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
