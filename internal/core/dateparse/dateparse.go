// Package dateparse holds the single year/month/day recognition heuristic
// shared by the Metadata Extractor (C1), DOM Analyzer (C2), and Selector
// Evaluator (C3), so "ISO or recognizable pattern" (spec §3, §4.3, §4.4)
// means exactly one thing across the codebase.
package dateparse

import (
	"regexp"
	"time"
)

// ymdPattern matches a numeric year-month-day shaped date separated by '-'
// or '/', e.g. 2026-07-31 or 2026/7/31. Month-name forms such as
// "July 31, 2026" do not match.
var ymdPattern = regexp.MustCompile(`\b(19|20)\d{2}[-/](0?[1-9]|1[0-2])[-/](0?[1-9]|[12]\d|3[01])\b`)

// IsRecognizable reports whether s parses as RFC3339/ISO-8601, or otherwise
// matches a year-month-day pattern (spec's "ISO or recognizable pattern").
func IsRecognizable(s string) bool {
	if s == "" {
		return false
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return true
	}
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	return ymdPattern.MatchString(s)
}

// MatchesPattern reports whether text contains a year-month-day shaped
// substring, used by the DOM Analyzer's 0.7-confidence date ranking rule
// (spec §4.3) which is deliberately looser than full ISO parsing.
func MatchesPattern(text string) bool {
	return ymdPattern.MatchString(text)
}
