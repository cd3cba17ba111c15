package model

import "sort"

// NoiseFilter is a user-defined literal removed from descriptors before matching.
type NoiseFilter struct {
	Pattern  string `json:"pattern"`
	Position int    `json:"position"`
}

// FilterPatterns returns the patterns ordered by position.
func FilterPatterns(filters []NoiseFilter) []string {
	ordered := make([]NoiseFilter, len(filters))
	copy(ordered, filters)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	out := make([]string, 0, len(ordered))
	for _, f := range ordered {
		out = append(out, f.Pattern)
	}
	return out
}
