// Package amount parses free-text money amounts from bank exports.
//
// Exports mix locales: "1.234,56", "1,234.56", "-3.126,38 kr." and "1.000"
// all occur in the wild and no out-of-band signal says which convention a
// file uses. The Auto convention resolves the ambiguity with an ordered
// decision table over the shape of the separators; the explicit conventions
// skip the table when the caller knows the format.
package amount

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Parse errors.
var (
	// ErrNoAmount means nothing numeric was left after cleaning.
	ErrNoAmount = errors.New("no amount found")
	// ErrInvalidAmount means the cleaned text is not a number.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Convention selects how separators are interpreted.
type Convention int

// Separator conventions.
const (
	// Auto applies the separator decision table.
	Auto Convention = iota
	// DecimalComma treats ',' as the decimal separator and '.' as grouping.
	DecimalComma
	// DecimalPoint treats '.' as the decimal separator and ',' as grouping.
	DecimalPoint
)

func (c Convention) String() string {
	switch c {
	case DecimalComma:
		return "comma"
	case DecimalPoint:
		return "point"
	default:
		return "auto"
	}
}

// ParseConvention converts a configuration value into a Convention.
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "comma", "eu":
		return DecimalComma, nil
	case "point", "dot", "us":
		return DecimalPoint, nil
	default:
		return Auto, fmt.Errorf("unknown amount convention %q", s)
	}
}

// Parser parses amounts under a fixed convention. The zero value uses Auto.
type Parser struct {
	Convention Convention
}

// Parse is the strict call site: it returns an error when no amount can be read.
func Parse(raw string) (decimal.Decimal, error) {
	return Parser{}.Parse(raw)
}

// ParseOrZero is the lenient call site used by form inputs.
func ParseOrZero(raw string) decimal.Decimal {
	return Parser{}.ParseOrZero(raw)
}

// ParseOrZero returns zero instead of an error.
func (p Parser) ParseOrZero(raw string) decimal.Decimal {
	d, err := p.Parse(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Parse converts raw into a signed amount rounded to exactly two places.
func (p Parser) Parse(raw string) (decimal.Decimal, error) {
	cleaned, negative := clean(raw)
	if cleaned == "" {
		return decimal.Zero, ErrNoAmount
	}

	normalized := p.normalize(cleaned)
	if strings.HasPrefix(normalized, ".") {
		normalized = "0" + normalized
	}
	if strings.Count(normalized, ".") > 1 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		d = d.Neg()
	}
	return d.Round(2), nil
}

func (p Parser) normalize(s string) string {
	switch p.Convention {
	case DecimalComma:
		return withDecimal(s, ',', '.')
	case DecimalPoint:
		return withDecimal(s, '.', ',')
	default:
		return resolveSeparators(s)
	}
}

// clean keeps digits and separators, drops artifacts of stripped currency
// suffixes and reports whether a leading or trailing minus was present.
func clean(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := b.String()

	// "125,-" is the Scandinavian way of writing a whole amount.
	for _, suffix := range []string{",-", ".-"} {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			s = strings.TrimSuffix(s, suffix)
		}
	}
	s = strings.TrimRight(s, ".,")

	negative := strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.TrimRight(s, ".,")

	if !strings.ContainsAny(s, "0123456789") {
		return "", false
	}
	return s, negative
}

// withDecimal removes every grouping separator and turns dec into '.'.
func withDecimal(s string, dec, group byte) string {
	s = strings.ReplaceAll(s, string(group), "")
	return strings.ReplaceAll(s, string(dec), ".")
}
