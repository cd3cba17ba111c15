package rules

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/tally/internal/model"
)

// SuggestRule builds a fuzzy rule for a clean descriptor the user has just
// categorized, so that future imports of the same merchant match on their own.
func SuggestRule(clean, category string, subCategory *string) (model.MerchantRule, error) {
	clean = strings.TrimSpace(clean)
	rule := model.MerchantRule{
		ID:              uuid.NewString(),
		SourceName:      strings.ToUpper(clean),
		CleanSourceName: clean,
		MatchMode:       model.MatchFuzzy,
		AutoCategory:    strings.TrimSpace(category),
		AutoSubCategory: subCategory,
		CreatedAt:       time.Now().UTC(),
	}
	if err := rule.Validate(); err != nil {
		return model.MerchantRule{}, err
	}
	return rule, nil
}

// FromSuggestion turns an accepted enrichment suggestion into a rule.
func FromSuggestion(clean string, s model.Suggestion) (model.MerchantRule, error) {
	return SuggestRule(clean, s.Category, s.SubCategory)
}
