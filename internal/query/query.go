// Package query defines the SQL executor contract consumed by the
// orchestration pipeline. A request targets exactly one dataset: the active
// dataset resolved at the start of the attempt.
package query

import (
	"context"
	"time"
)

type DatasetFile struct {
	TableName  string
	ObjectPath string
}

type Request struct {
	SQL      string
	RowLimit int
	Dataset  DatasetFile
}

// Result keeps the executor's column order so downstream fact extraction is
// deterministic.
type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// RowMaps converts the result to ordered column-name→value mappings, one per
// row.
func (r Result) RowMaps() []map[string]any {
	maps := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		maps = append(maps, m)
	}
	return maps
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
