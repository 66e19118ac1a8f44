// Package sqlguard gates execution of model-generated SQL. It is a lexical
// allow-list, not a parser: the checks trade completeness for simplicity and
// auditability, matching a cooperative-but-unreliable generator rather than
// an adversarial attacker.
package sqlguard

import (
	"regexp"
	"strings"
)

var forbiddenKeywords = map[string]struct{}{
	"insert":   {},
	"update":   {},
	"delete":   {},
	"alter":    {},
	"drop":     {},
	"create":   {},
	"truncate": {},
}

var commentMarkers = []string{";--", "--", "/*"}

var tableRefPattern = regexp.MustCompile(`(?i)\b(from|join)\s+"?([a-zA-Z0-9_]+)"?`)

// IsSelectOnly accepts statements that begin with select, a parenthesized
// UNION member, or a CTE, and contain no data-modifying keyword or comment
// marker. Keywords are matched as whitespace-delimited tokens so column
// names like "created_at" do not trip the check.
func IsSelectOnly(sql string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(sql))
	if cleaned == "" {
		return false
	}
	if !strings.HasPrefix(cleaned, "select") && !strings.HasPrefix(cleaned, "(") && !strings.HasPrefix(cleaned, "with") {
		return false
	}

	for _, marker := range commentMarkers {
		if strings.Contains(cleaned, marker) {
			return false
		}
	}
	for _, token := range strings.Fields(cleaned) {
		token = strings.Trim(token, "();,")
		if _, forbidden := forbiddenKeywords[token]; forbidden {
			return false
		}
	}
	return true
}

// ReferencesOnlyTable extracts every identifier following FROM or JOIN and
// requires all of them to normalize-equal allowedTable. The statement must
// also mention the allowed table at least once, so a query that references
// nothing is rejected too.
func ReferencesOnlyTable(sql, allowedTable string) bool {
	target := Normalize(allowedTable)
	if target == "" {
		return false
	}

	for _, match := range tableRefPattern.FindAllStringSubmatch(sql, -1) {
		if Normalize(match[2]) != target {
			return false
		}
	}
	return strings.Contains(strings.ToLower(sql), target)
}

// Normalize strips double quotes, trims whitespace, and lowercases an
// identifier for case-insensitive comparison.
func Normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(identifier, `"`, "")))
}
