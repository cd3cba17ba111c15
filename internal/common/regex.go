package common

import "regexp"

// CompileLiteral compiles pattern as a case-insensitive literal. Regex
// metacharacters in pattern match themselves.
func CompileLiteral(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + regexp.QuoteMeta(pattern))
}
