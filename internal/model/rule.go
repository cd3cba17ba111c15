// Package model defines the core data structures for the tally application.
package model

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// MatchMode controls which matching tiers a rule takes part in.
type MatchMode string

// Match mode constants.
const (
	// MatchExact rules only match on case-insensitive equality.
	MatchExact MatchMode = "exact"
	// MatchFuzzy rules also take part in prefix/containment matching.
	MatchFuzzy MatchMode = "fuzzy"
)

// ErrInvalidRule is returned when a rule has neither a source name nor a clean name.
var ErrInvalidRule = errors.New("rule needs a source name or a clean source name")

// ParseMatchMode converts user input into a MatchMode. Empty input means fuzzy.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(MatchFuzzy):
		return MatchFuzzy, nil
	case string(MatchExact):
		return MatchExact, nil
	default:
		return "", errors.New("match mode must be exact or fuzzy")
	}
}

// MerchantRule maps a descriptor pattern to a canonical merchant and category.
type MerchantRule struct {
	CreatedAt       time.Time `json:"created_at"`
	AutoSubCategory *string   `json:"auto_sub_category,omitempty"`
	ID              string    `json:"id"`
	SourceName      string    `json:"source_name"`
	CleanSourceName string    `json:"clean_source_name"`
	MatchMode       MatchMode `json:"match_mode"`
	AutoCategory    string    `json:"auto_category"`
	Position        int       `json:"position"`
}

// Validate checks the rule invariants.
func (r MerchantRule) Validate() error {
	if strings.TrimSpace(r.SourceName) == "" && strings.TrimSpace(r.CleanSourceName) == "" {
		return ErrInvalidRule
	}
	if r.MatchMode != "" && r.MatchMode != MatchExact && r.MatchMode != MatchFuzzy {
		return errors.New("unknown match mode: " + string(r.MatchMode))
	}
	return nil
}

// IsExactOnly reports whether the rule is excluded from fuzzy matching.
func (r MerchantRule) IsExactOnly() bool {
	return r.MatchMode == MatchExact
}

// EffectiveName is the name used for fuzzy matching: the source name,
// or the clean source name when the source name is empty.
func (r MerchantRule) EffectiveName() string {
	if name := strings.TrimSpace(r.SourceName); name != "" {
		return name
	}
	return strings.TrimSpace(r.CleanSourceName)
}

// RuleSet is an ordered rule table. Order is significant: when several
// rules match in the same tier, the earliest one wins.
type RuleSet []MerchantRule

// Sorted returns a copy ordered by Position. Rules sharing a position keep
// their relative order.
func (rs RuleSet) Sorted() RuleSet {
	out := make(RuleSet, len(rs))
	copy(out, rs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}

// Categories returns the distinct categories used by the rules, in table order.
func (rs RuleSet) Categories() []string {
	seen := make(map[string]struct{}, len(rs))
	var out []string
	for _, r := range rs {
		if r.AutoCategory == "" {
			continue
		}
		if _, ok := seen[r.AutoCategory]; ok {
			continue
		}
		seen[r.AutoCategory] = struct{}{}
		out = append(out, r.AutoCategory)
	}
	return out
}
