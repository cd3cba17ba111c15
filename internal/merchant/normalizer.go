// Package merchant strips statement boilerplate from raw transaction
// descriptors so that they can be matched against merchant rules.
package merchant

import (
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Veraticus/tally/internal/common"
)

// maxPasses bounds the cleanup loop; real descriptors settle in two.
const maxPasses = 8

// legacyPrefixes are card network and payment processor prefixes that
// banks put in front of the merchant name. Longer prefixes come first.
var legacyPrefixes = []string{
	"MC/VISA DK K ",
	"MC/VISA DK ",
	"MC/VISA ",
	"VISA/DANKORT ",
	"VISA DK ",
	"VISA ",
	"DANKORT-NOTA ",
	"DANKORT-KØB ",
	"DANKORT ",
	"MASTERCARD ",
	"MAESTRO ",
	"MOBILEPAY: ",
	"MOBILEPAY ",
	"APPLE PAY ",
	"GOOGLE PAY ",
	"PBS ",
	"BS ",
	"NETS ",
	"SUMUP ",
	"IZETTLE ",
	"ZETTLE ",
	"PAYPAL ",
	"KØB ",
}

var (
	leadingNumber   = regexp.MustCompile(`^\d[\d./:-]*\s+`)
	trailingNumber  = regexp.MustCompile(`\s+\d[\d./:-]*$`)
	loneNumber      = regexp.MustCompile(`^\d[\d./:-]*$`)
	longDigitRun    = regexp.MustCompile(`(^|\s)\d{4,}(\s|$)`)
	domainSuffix    = regexp.MustCompile(`(?i)\.(?:co\.uk|com|dk|net|org)(\s|$)`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	statementBreaks = []string{"*", "  "}
)

// Normalizer cleans descriptors with a fixed, ordered list of noise
// filters. It is safe for concurrent use.
type Normalizer struct {
	logger  *slog.Logger
	filters []*regexp.Regexp
	skipped []string
}

// NewNormalizer compiles the filters in the given order. Filters are
// literals matched case-insensitively; a filter that cannot be compiled is
// logged and skipped.
func NewNormalizer(filters []string, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}

	n := &Normalizer{logger: logger}
	for _, f := range filters {
		if strings.TrimSpace(f) == "" {
			continue
		}
		re, err := common.CompileLiteral(f)
		if err != nil {
			logger.Warn("skipping invalid noise filter", "filter", f, "error", err)
			n.skipped = append(n.skipped, f)
			continue
		}
		n.filters = append(n.filters, re)
	}
	return n
}

// Clean is a convenience wrapper that builds a Normalizer for one call.
func Clean(raw string, filters []string) string {
	return NewNormalizer(filters, nil).Clean(raw)
}

// Skipped returns the filters that were rejected at construction.
func (n *Normalizer) Skipped() []string {
	return n.skipped
}

// Clean returns the clean descriptor for raw. Filters run once, in order;
// the prefix, number and domain steps then repeat until nothing changes.
func (n *Normalizer) Clean(raw string) string {
	s := norm.NFC.String(raw)
	s = truncateAtBreak(s)

	for _, re := range n.filters {
		s = re.ReplaceAllString(s, "")
	}
	s = collapse(s)

	for range maxPasses {
		next := pass(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

// pass applies the prefix, number and domain steps once.
func pass(s string) string {
	s = stripPrefixes(s)
	s = leadingNumber.ReplaceAllString(s, "")
	s = trailingNumber.ReplaceAllString(s, "")
	s = loneNumber.ReplaceAllString(s, "")
	s = longDigitRun.ReplaceAllString(s, " ")
	s = domainSuffix.ReplaceAllString(s, "$1")

	return collapse(s)
}

func truncateAtBreak(s string) string {
	cut := len(s)
	for _, sep := range statementBreaks {
		if i := strings.Index(s, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	return s[:cut]
}

func stripPrefixes(s string) string {
	for {
		stripped := false
		for _, p := range legacyPrefixes {
			if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
