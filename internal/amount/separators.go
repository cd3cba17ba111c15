package amount

import "strings"

// separatorShape describes where the separators sit in a cleaned amount.
type separatorShape struct {
	text      string
	commas    int
	dots      int
	lastComma int
	lastDot   int
}

func shapeOf(s string) separatorShape {
	return separatorShape{
		text:      s,
		commas:    strings.Count(s, ","),
		dots:      strings.Count(s, "."),
		lastComma: strings.LastIndexByte(s, ','),
		lastDot:   strings.LastIndexByte(s, '.'),
	}
}

// digitsAfter counts the characters following index i.
func (s separatorShape) digitsAfter(i int) int {
	if i < 0 {
		return 0
	}
	return len(s.text) - i - 1
}

// separatorRule is one row of the decision table. Rows are evaluated in
// order and the first row that applies decides the normalization.
type separatorRule struct {
	name      string
	applies   func(separatorShape) bool
	normalize func(separatorShape) string
}

var separatorRules = []separatorRule{
	{
		name:    "both present, last separator is decimal",
		applies: func(s separatorShape) bool { return s.commas > 0 && s.dots > 0 },
		normalize: func(s separatorShape) string {
			if s.lastComma > s.lastDot {
				return withDecimal(s.text, ',', '.')
			}
			return withDecimal(s.text, '.', ',')
		},
	},
	{
		name: "single comma followed by at most two digits is decimal",
		applies: func(s separatorShape) bool {
			return s.commas == 1 && s.dots == 0 && s.digitsAfter(s.lastComma) <= 2
		},
		normalize: func(s separatorShape) string { return strings.Replace(s.text, ",", ".", 1) },
	},
	{
		name:      "commas only, grouping",
		applies:   func(s separatorShape) bool { return s.commas > 0 && s.dots == 0 },
		normalize: func(s separatorShape) string { return strings.ReplaceAll(s.text, ",", "") },
	},
	{
		name: "single dot followed by at most two digits is decimal",
		applies: func(s separatorShape) bool {
			return s.dots == 1 && s.commas == 0 && s.digitsAfter(s.lastDot) <= 2
		},
		normalize: func(s separatorShape) string { return s.text },
	},
	{
		name:      "dots only, grouping",
		applies:   func(s separatorShape) bool { return s.dots > 0 && s.commas == 0 },
		normalize: func(s separatorShape) string { return strings.ReplaceAll(s.text, ".", "") },
	},
	{
		name:      "no separators",
		applies:   func(separatorShape) bool { return true },
		normalize: func(s separatorShape) string { return s.text },
	},
}

// resolveSeparators rewrites s into a plain decimal-point number.
func resolveSeparators(s string) string {
	shape := shapeOf(s)
	for _, rule := range separatorRules {
		if rule.applies(shape) {
			return rule.normalize(shape)
		}
	}
	return s
}

// matchingRule returns the name of the table row that handles s.
func matchingRule(s string) string {
	shape := shapeOf(s)
	for _, rule := range separatorRules {
		if rule.applies(shape) {
			return rule.name
		}
	}
	return ""
}
