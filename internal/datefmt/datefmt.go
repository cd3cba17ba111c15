// Package datefmt turns free-text bank dates into ISO calendar dates.
package datefmt

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISOLayout is the canonical output layout.
const ISOLayout = "2006-01-02"

// ErrUnparseable is returned by the strict parser when no pattern applies.
var ErrUnparseable = errors.New("unparseable date")

// YearPolicy decides how two-digit years are expanded.
type YearPolicy int

// Two-digit year policies.
const (
	// Pivot1950 maps 00-49 to 2000-2049 and 50-99 to 1950-1999.
	Pivot1950 YearPolicy = iota
	// Fixed2000 always adds 2000.
	Fixed2000
)

func (p YearPolicy) String() string {
	if p == Fixed2000 {
		return "fixed2000"
	}
	return "pivot1950"
}

// ParseYearPolicy converts a configuration value into a YearPolicy.
func ParseYearPolicy(s string) (YearPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pivot1950", "1950":
		return Pivot1950, nil
	case "fixed2000", "2000", "2000-fixed":
		return Fixed2000, nil
	default:
		return Pivot1950, fmt.Errorf("unknown two-digit year policy %q", s)
	}
}

var (
	yearFirst = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})`)
	dayFirst  = regexp.MustCompile(`^(\d{1,2})[-/.](\d{1,2})[-/.](\d{2,4})`)
)

// fallbackLayouts are tried last, in order.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"02-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"Mon, 2 Jan 2006",
	"Mon Jan 2 2006",
	"20060102",
}

// Parser converts raw date text. The zero value uses Pivot1950, the local
// time zone and the wall clock.
type Parser struct {
	Location   *time.Location
	Now        func() time.Time
	YearPolicy YearPolicy
}

// Parse parses raw with the default Parser.
func Parse(raw string) (string, error) {
	return Parser{}.Parse(raw)
}

// Parse is the strict call site. It returns the ISO date or ErrUnparseable.
func (p Parser) Parse(raw string) (string, error) {
	t, err := p.ParseTime(raw)
	if err != nil {
		return "", err
	}
	return t.Format(ISOLayout), nil
}

// ParseOrToday is the lenient call site: unparseable input yields today's date.
func (p Parser) ParseOrToday(raw string) string {
	if iso, err := p.Parse(raw); err == nil {
		return iso
	}
	return p.Today()
}

// Today returns the current date in the parser's location.
func (p Parser) Today() string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().In(p.location()).Format(ISOLayout)
}

// ParseTime returns the parsed date at local noon. Noon keeps the calendar
// day stable when the value is later converted to another time zone.
func (p Parser) ParseTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrUnparseable
	}

	if m := yearFirst.FindStringSubmatch(s); m != nil {
		if t, ok := p.build(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return t, nil
		}
	}

	if m := dayFirst.FindStringSubmatch(s); m != nil {
		year := atoi(m[3])
		if len(m[3]) == 2 {
			year = p.expandYear(year)
		}
		if t, ok := p.build(year, atoi(m[2]), atoi(m[1])); ok {
			return t, nil
		}
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, p.location()); err == nil {
			return p.noon(t.Year(), t.Month(), t.Day()), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, raw)
}

func (p Parser) expandYear(yy int) int {
	if p.YearPolicy == Fixed2000 || yy < 50 {
		return 2000 + yy
	}
	return 1900 + yy
}

// build rejects components that time.Date would silently roll over.
func (p Parser) build(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := p.noon(year, time.Month(month), day)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func (p Parser) noon(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, p.location())
}

func (p Parser) location() *time.Location {
	if p.Location != nil {
		return p.Location
	}
	return time.Local
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
