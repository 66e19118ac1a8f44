// Package nl2sql defines the text-generation collaborator: one call turns a
// natural-language question into candidate SQL, a second grounds a summary
// in the executed result set. Both calls may fail; the orchestrator maps
// failures to fallback and degraded behaviors.
package nl2sql

import "context"

type SQLRequest struct {
	// Context is the assembled prompt: table name, schema description,
	// filtered conversation transcript, and the raw question.
	Context     string
	TargetTable string
	Columns     []string
}

type SummaryRequest struct {
	Question    string
	TableName   string
	Columns     []string
	Rows        []map[string]any
	Transcript  string
	FactSnippet string
	// Conversational selects the freeform system prompt over the strict
	// data-analyst one.
	Conversational bool
}

type Generator interface {
	GenerateSQL(ctx context.Context, req SQLRequest) (string, error)
	GenerateSummary(ctx context.Context, req SummaryRequest) (string, error)
}
