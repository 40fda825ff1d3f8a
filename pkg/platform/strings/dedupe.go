// Package strings holds small helpers for query and form values.
package strings

import (
	"strings"
)

// SplitList splits comma separated values, possibly repeated across several
// query parameters, into a lower-cased list without blanks or duplicates.
// Order of first appearance is kept.
//
//	SplitList("Pending, failed", "pending")
//	// Returns: []string{"pending", "failed"}
func SplitList(values ...string) []string {
	var parts []string
	for _, v := range values {
		parts = append(parts, strings.Split(v, ",")...)
	}
	return DedupeAndTrimLower(parts)
}

// DedupeAndTrimLower trims and lower-cases each element, dropping empty
// strings and duplicates. Order is preserved.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
