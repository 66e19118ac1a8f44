// Package facts derives a compact, deterministic digest from a result set.
// The digest grounds the summarization step: the summarizer is told to use
// only these values, so fabricated numbers can be caught against a fixed
// reference.
package facts

import (
	"fmt"
	"strings"
)

// NoRows is returned for an empty result set.
const NoRows = "(no rows)"

const (
	maxRows         = 5
	maxFieldsPerRow = 6
	rowSeparator    = " | "
)

// preferredColumns lists common business-metric column names, highest
// priority first. Matching non-null fields lead each row's digest.
var preferredColumns = []string{
	"product", "item", "name", "amount", "price", "cost", "quantity", "qty", "customer",
}

// Extract renders up to the first five rows as "ROW{i}: k=v; k=v" fragments
// joined by " | ". Field order per row: preferred columns first, then the
// remaining non-null columns in column order, capped at six fields. The
// function is pure; identical input always yields identical output.
func Extract(columns []string, rows []map[string]any) string {
	if len(rows) == 0 {
		return NoRows
	}

	limit := len(rows)
	if limit > maxRows {
		limit = maxRows
	}

	var sb strings.Builder
	for i := 0; i < limit; i++ {
		if i > 0 {
			sb.WriteString(rowSeparator)
		}
		sb.WriteString(fmt.Sprintf("ROW%d: ", i+1))
		sb.WriteString(strings.Join(rowFields(columns, rows[i]), "; "))
	}
	return sb.String()
}

func rowFields(columns []string, row map[string]any) []string {
	fields := make([]string, 0, maxFieldsPerRow)
	seen := make(map[string]bool, maxFieldsPerRow)

	for _, col := range preferredColumns {
		if len(fields) >= maxFieldsPerRow {
			break
		}
		value, ok := row[col]
		if !ok || value == nil {
			continue
		}
		fields = append(fields, fmt.Sprintf("%s=%v", col, value))
		seen[col] = true
	}

	for _, col := range columns {
		if len(fields) >= maxFieldsPerRow {
			break
		}
		if seen[col] {
			continue
		}
		value, ok := row[col]
		if !ok || value == nil {
			continue
		}
		fields = append(fields, fmt.Sprintf("%s=%v", col, value))
		seen[col] = true
	}
	return fields
}
