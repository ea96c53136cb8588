// Package strings provides string helpers for request parsing.
package strings

import (
	"strings"
)

// SplitList splits every value on sep, trims the parts and drops blanks and
// repeats, keeping first-seen order. Repeated and comma-separated query
// parameters therefore read the same:
//
//	SplitList([]string{"A,B", " B ", "C"}, ",")
//	// Returns: []string{"A", "B", "C"}
func SplitList(values []string, sep string) []string {
	var (
		seen   map[string]struct{}
		result []string
	)
	for _, v := range values {
		for _, part := range strings.Split(v, sep) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			if seen == nil {
				seen = make(map[string]struct{})
			}
			seen[part] = struct{}{}
			result = append(result, part)
		}
	}
	return result
}
