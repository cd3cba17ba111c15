// Package similarity scores how close two strings are.
package similarity

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
)

// fold returns a caseless form of s. A new Caser per call keeps the
// functions safe for concurrent use.
func fold(s string) string {
	return cases.Fold().String(s)
}

// EditDistance is the case-insensitive Levenshtein distance between a and b,
// counted in runes with unit costs.
func EditDistance(a, b string) int {
	return levenshtein.ComputeDistance(fold(a), fold(b))
}

// Similarity returns (maxLen - distance) / maxLen in [0,1]. Two empty
// strings are identical.
func Similarity(a, b string) float64 {
	fa, fb := fold(a), fold(b)
	longest := max(utf8.RuneCountInString(fa), utf8.RuneCountInString(fb))
	if longest == 0 {
		return 1.0
	}
	d := levenshtein.ComputeDistance(fa, fb)
	return float64(longest-d) / float64(longest)
}

// Candidate is one scored option returned by BestMatch.
type Candidate struct {
	Value string
	Score float64
	Index int
}

// BestMatch returns the option most similar to s, provided its score is at
// least threshold. Ties go to the earlier option.
func BestMatch(s string, options []string, threshold float64) (Candidate, bool) {
	best := Candidate{Index: -1}
	needle := strings.TrimSpace(s)

	for i, opt := range options {
		score := Similarity(needle, strings.TrimSpace(opt))
		if score > best.Score || best.Index < 0 {
			best = Candidate{Value: opt, Score: score, Index: i}
		}
	}

	if best.Index < 0 || best.Score < threshold {
		return Candidate{}, false
	}
	return best, true
}
