// Package rules matches transaction descriptors against the user's
// merchant rule table.
//
// Matching is tiered. Tier 1 is a case-insensitive exact match on the raw
// or clean descriptor and scores 1.0. Tier 2 is prefix/containment matching
// over rules that are not exact-only and scores 0.8. Within a tier the
// earliest rule in table order wins. Confidence is always one of the fixed
// tier values, never a raw similarity score.
package rules

import (
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/tally/internal/merchant"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/similarity"
)

// Tier confidences.
const (
	ConfidenceNone  = 0.0
	ConfidenceFuzzy = 0.8
	ConfidenceExact = 1.0
)

// minNameLength is the shortest effective rule name considered for fuzzy matching.
const minNameLength = 2

// minCleanPrefixLength is the length the clean descriptor must exceed
// before it may match as a prefix of a rule name.
const minCleanPrefixLength = 3

// Tier identifies how a result was derived.
type Tier int

// Matching tiers.
const (
	TierNone Tier = iota
	TierExact
	TierFuzzy
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Result is the outcome of matching one descriptor.
type Result struct {
	SubCategory     *string
	CleanName       string
	CleanDescriptor string
	Category        string
	RuleID          string
	Confidence      float64
	Tier            Tier
	Matched         bool
}

// preparedRule caches the lower-cased forms used during matching.
type preparedRule struct {
	rule   model.MerchantRule
	source string
	clean  string
	name   string
}

// Matcher matches descriptors against an ordered rule table. The table and
// filters are snapshotted at construction; a Matcher is safe for
// concurrent use.
type Matcher struct {
	normalizer *merchant.Normalizer
	rules      []preparedRule
	rankFuzzy  bool
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithSimilarityRanking ranks tier-2 candidates by similarity to the clean
// descriptor instead of taking the first one. Ties keep table order.
func WithSimilarityRanking() Option {
	return func(m *Matcher) {
		m.rankFuzzy = true
	}
}

// NewMatcher prepares rules in the order given. A nil normalizer cleans
// descriptors without noise filters.
func NewMatcher(rules []model.MerchantRule, normalizer *merchant.Normalizer, opts ...Option) *Matcher {
	if normalizer == nil {
		normalizer = merchant.NewNormalizer(nil, nil)
	}

	m := &Matcher{
		normalizer: normalizer,
		rules:      make([]preparedRule, 0, len(rules)),
	}
	for _, r := range rules {
		m.rules = append(m.rules, preparedRule{
			rule:   r,
			source: lower(r.SourceName),
			clean:  lower(r.CleanSourceName),
			name:   lower(r.EffectiveName()),
		})
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match runs a single descriptor through a one-off Matcher.
func Match(raw string, rules []model.MerchantRule, filters []string) Result {
	return NewMatcher(rules, merchant.NewNormalizer(filters, nil)).Match(raw)
}

// Len returns the number of rules in the table.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Match cleans raw and finds the best rule for it.
func (m *Matcher) Match(raw string) Result {
	clean := m.normalizer.Clean(raw)
	rawLower := lower(raw)
	cleanLower := lower(clean)

	if pr, ok := m.exact(rawLower, cleanLower); ok {
		return matched(pr.rule, clean, TierExact, ConfidenceExact)
	}
	if pr, ok := m.fuzzy(rawLower, cleanLower); ok {
		return matched(pr.rule, clean, TierFuzzy, ConfidenceFuzzy)
	}

	return Result{
		CleanName:       clean,
		CleanDescriptor: clean,
		Confidence:      ConfidenceNone,
		Tier:            TierNone,
	}
}

func (m *Matcher) exact(rawLower, cleanLower string) (preparedRule, bool) {
	for _, pr := range m.rules {
		if pr.source != "" && pr.source == rawLower {
			return pr, true
		}
		if pr.clean != "" && pr.clean == cleanLower {
			return pr, true
		}
	}
	return preparedRule{}, false
}

func (m *Matcher) fuzzy(rawLower, cleanLower string) (preparedRule, bool) {
	var (
		best      preparedRule
		bestScore = -1.0
		found     bool
	)

	for _, pr := range m.rules {
		if pr.rule.IsExactOnly() || !fuzzyMatches(pr.name, rawLower, cleanLower) {
			continue
		}
		if !m.rankFuzzy {
			return pr, true
		}
		if score := similarity.Similarity(pr.name, cleanLower); score > bestScore {
			best, bestScore, found = pr, score, true
		}
	}
	return best, found
}

func fuzzyMatches(name, rawLower, cleanLower string) bool {
	if utf8.RuneCountInString(name) < minNameLength {
		return false
	}
	switch {
	case strings.HasPrefix(rawLower, name):
		return true
	case strings.HasPrefix(cleanLower, name):
		return true
	case utf8.RuneCountInString(cleanLower) > minCleanPrefixLength && strings.HasPrefix(name, cleanLower):
		return true
	default:
		return strings.Contains(rawLower, name)
	}
}

func matched(r model.MerchantRule, clean string, tier Tier, confidence float64) Result {
	name := strings.TrimSpace(r.CleanSourceName)
	if name == "" {
		name = clean
	}
	return Result{
		CleanName:       name,
		CleanDescriptor: clean,
		Category:        r.AutoCategory,
		SubCategory:     r.AutoSubCategory,
		RuleID:          r.ID,
		Confidence:      confidence,
		Tier:            tier,
		Matched:         true,
	}
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
