// Package orchestrator runs the end-to-end pipeline for one natural-language
// query: resolve the active dataset, assemble prompt context, generate SQL,
// guard it, execute it, summarize the rows, and record the attempt. The
// pipeline is linear; any failure is terminal for the attempt.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/querybot/querybot/internal/dataset"
	"github.com/querybot/querybot/internal/facts"
	"github.com/querybot/querybot/internal/history"
	"github.com/querybot/querybot/internal/memory"
	"github.com/querybot/querybot/internal/nl2sql"
	"github.com/querybot/querybot/internal/observability"
	"github.com/querybot/querybot/internal/query"
	"github.com/querybot/querybot/internal/sqlguard"
)

const (
	defaultGenerateTimeout  = 20 * time.Second
	defaultSummarizeTimeout = 20 * time.Second
)

// Validator rejection reasons carried by PolicyViolationError.
const (
	ReasonNotSelectOnly     = "only SELECT statements are allowed"
	ReasonUnauthorizedTable = "SQL references tables other than the active dataset"
)

var (
	selectStarPattern      = regexp.MustCompile(`(?is).*select\s+\*.*`)
	defaultFallbackColumns = regexp.MustCompile(`(?i)(amount|price|cost|value|total|quantity|qty)`)
)

// rankingKeywords mark questions that expect a single extreme value. A bare
// SELECT * for such a question is rewritten to an ORDER BY query so the
// answer is the extreme row, not the whole table.
var rankingKeywords = []string{"most", "highest", "max", "top", "expensive", "largest", "greatest"}

// fullTablePhrases exempt SELECT * from the bare-star fallback: the user
// explicitly asked for everything.
var fullTablePhrases = []string{"all rows", "full table", "everything"}

// PolicyViolationError reports a generated statement rejected by the SQL
// guard. Reason distinguishes the select-only check from the table-scope
// check.
type PolicyViolationError struct {
	Reason string
	SQL    string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy violation: %s", e.Reason)
}

// ExecutionError wraps an executor failure for a statement that passed the
// guard.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

type Request struct {
	Question string
	// TargetTable optionally names the table the caller expects to query.
	// Anything other than the active dataset's table is rejected.
	TargetTable string
	SessionKey  string
}

type Response struct {
	SQL     string
	Columns []string
	Rows    []map[string]any
	// Summary is nil when summarization failed or returned nothing; the
	// attempt still succeeds with SQL and rows.
	Summary *string
}

// Options tune pipeline policy. The zero value is usable.
type Options struct {
	GenerateTimeout  time.Duration
	SummarizeTimeout time.Duration
	// FallbackColumnPattern selects the column used when the ranking guard
	// rewrites a SELECT *. The first active-dataset column matching the
	// pattern wins; "amount" is the final fallback. The default pattern is
	// a heuristic convenience, not a contract.
	FallbackColumnPattern *regexp.Regexp
	// Conversational overrides the built-in phrase-list classifier that
	// decides between the strict and freeform summary prompts.
	Conversational func(question string) bool
}

// Orchestrator wires the pipeline's collaborators. Generator may be nil: SQL
// generation then always uses the deterministic fallback query and summaries
// are count-based.
type Orchestrator struct {
	resolver  *dataset.Resolver
	generator nl2sql.Generator
	engine    query.Engine
	sink      history.Sink
	memory    *memory.Store
	logger    *slog.Logger
	opts      Options
}

func New(resolver *dataset.Resolver, generator nl2sql.Generator, engine query.Engine, sink history.Sink, mem *memory.Store, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = defaultGenerateTimeout
	}
	if opts.SummarizeTimeout <= 0 {
		opts.SummarizeTimeout = defaultSummarizeTimeout
	}
	if opts.FallbackColumnPattern == nil {
		opts.FallbackColumnPattern = defaultFallbackColumns
	}
	if opts.Conversational == nil {
		opts.Conversational = IsConversational
	}
	if logger == nil {
		logger = slog.Default()
	}
	if mem == nil {
		mem = memory.NewStore()
	}
	return &Orchestrator{
		resolver:  resolver,
		generator: generator,
		engine:    engine,
		sink:      sink,
		memory:    mem,
		logger:    logger,
		opts:      opts,
	}
}

// RunQuery executes the full pipeline for one question. The question is
// appended to the session log before generation, so it is visible to the next
// turn even when this attempt fails downstream.
func (o *Orchestrator) RunQuery(ctx context.Context, req Request) (Response, error) {
	started := time.Now()

	active, err := o.resolver.ResolveActive(ctx)
	if err != nil {
		if errors.Is(err, dataset.ErrNoDataset) {
			observability.ObserveQueryAttempt(observability.OutcomeNoDataset, time.Since(started))
		}
		return Response{}, err
	}
	if err := dataset.CheckRequested(req.TargetTable, active.TableName); err != nil {
		observability.ObserveQueryAttempt(observability.OutcomeUnauthorized, time.Since(started))
		return Response{}, err
	}

	o.memory.Append(req.SessionKey, memory.RoleUser, req.Question)
	transcript := o.memory.PromptContext(req.SessionKey)
	columns := active.SanitizedColumns()

	sql := o.generate(ctx, req.Question, active, columns, transcript)
	sql = o.applyStarGuard(req.Question, sql, active.TableName, columns)

	if !sqlguard.IsSelectOnly(sql) {
		observability.IncrementPolicyViolation("select_only")
		observability.ObserveQueryAttempt(observability.OutcomePolicyViolation, time.Since(started))
		return Response{}, &PolicyViolationError{Reason: ReasonNotSelectOnly, SQL: sql}
	}
	if !sqlguard.ReferencesOnlyTable(sql, active.TableName) {
		observability.IncrementPolicyViolation("table_scope")
		observability.ObserveQueryAttempt(observability.OutcomePolicyViolation, time.Since(started))
		return Response{}, &PolicyViolationError{Reason: ReasonUnauthorizedTable, SQL: sql}
	}

	result, err := o.engine.Execute(ctx, query.Request{
		SQL:     sql,
		Dataset: query.DatasetFile{TableName: active.TableName, ObjectPath: active.ObjectPath},
	})
	if err != nil {
		observability.ObserveQueryAttempt(observability.OutcomeExecutionFailed, time.Since(started))
		return Response{}, &ExecutionError{SQL: sql, Err: err}
	}

	rows := result.RowMaps()
	snippet := facts.Extract(result.Columns, rows)
	summary := o.summarize(ctx, req.Question, active.TableName, result.Columns, rows, transcript, snippet)

	o.persist(ctx, req.Question, sql, rows)

	if summary != nil {
		o.memory.Append(req.SessionKey, memory.RoleAssistant, *summary)
	}
	if snippet != "" {
		o.memory.Append(req.SessionKey, memory.RoleAssistant, memory.FactPrefix+snippet)
	}

	observability.ObserveQueryAttempt(observability.OutcomeSuccess, time.Since(started))
	return Response{SQL: sql, Columns: result.Columns, Rows: rows, Summary: summary}, nil
}

// Transcript returns the session's full conversation log, oldest first.
func (o *Orchestrator) Transcript(sessionKey string) []memory.Message {
	return o.memory.Messages(sessionKey)
}

// RecordFact injects an out-of-band message into the session log, such as an
// upload confirmation the next question should be able to reference.
func (o *Orchestrator) RecordFact(sessionKey, role, content string) {
	o.memory.Append(sessionKey, role, content)
}

func (o *Orchestrator) generate(ctx context.Context, question string, active dataset.Dataset, columns []string, transcript string) string {
	if o.generator == nil {
		observability.IncrementGenerationFallback()
		return FallbackSQL(active.TableName)
	}

	genCtx, cancel := context.WithTimeout(ctx, o.opts.GenerateTimeout)
	defer cancel()

	sql, err := o.generator.GenerateSQL(genCtx, nl2sql.SQLRequest{
		Context:     buildPromptContext(active.TableName, active.Columns, transcript, question),
		TargetTable: active.TableName,
		Columns:     columns,
	})
	if err != nil || strings.TrimSpace(sql) == "" {
		o.logger.Warn("sql generation failed, using fallback query",
			slog.String("table", active.TableName), slog.Any("error", err))
		observability.IncrementGenerationFallback()
		return FallbackSQL(active.TableName)
	}
	return sql
}

// applyStarGuard rewrites or replaces a bare SELECT *. Ranking questions get
// a column-scoped ORDER BY query; any other SELECT * the user did not
// explicitly ask for becomes the deterministic fallback.
func (o *Orchestrator) applyStarGuard(question, sql, table string, columns []string) string {
	if !selectStarPattern.MatchString(sql) {
		return sql
	}
	q := strings.ToLower(question)

	if containsAny(q, rankingKeywords) {
		col := "amount"
		for _, c := range columns {
			if o.opts.FallbackColumnPattern.MatchString(c) {
				col = c
				break
			}
		}
		o.logger.Warn("rewriting SELECT * for ranking question",
			slog.String("column", col), slog.String("table", table))
		observability.IncrementGuardSubstitution()
		return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC LIMIT 1", col, table, col)
	}

	if !containsAny(q, fullTablePhrases) {
		o.logger.Warn("blocked bare SELECT *", slog.String("table", table))
		observability.IncrementGenerationFallback()
		return FallbackSQL(table)
	}
	return sql
}

func (o *Orchestrator) summarize(ctx context.Context, question, table string, columns []string, rows []map[string]any, transcript, snippet string) *string {
	conversational := o.opts.Conversational(question)

	if o.generator == nil {
		s := countSummary(len(rows))
		return &s
	}

	sumCtx, cancel := context.WithTimeout(ctx, o.opts.SummarizeTimeout)
	defer cancel()

	summary, err := o.generator.GenerateSummary(sumCtx, nl2sql.SummaryRequest{
		Question:       question,
		TableName:      table,
		Columns:        columns,
		Rows:           rows,
		Transcript:     transcript,
		FactSnippet:    snippet,
		Conversational: conversational,
	})
	if err != nil || strings.TrimSpace(summary) == "" {
		o.logger.Warn("summarization failed, returning rows without summary", slog.Any("error", err))
		observability.IncrementDegradedSummary()
		return nil
	}
	return &summary
}

// persist writes the attempt to the history sink. Failures are logged and
// swallowed so a history outage never fails a user-visible query.
func (o *Orchestrator) persist(ctx context.Context, question, sql string, rows []map[string]any) {
	if o.sink == nil {
		return
	}
	preview := rows
	if len(preview) > history.PreviewRowLimit {
		preview = preview[:history.PreviewRowLimit]
	}
	previewJSON, err := json.Marshal(preview)
	if err != nil {
		previewJSON = nil
	}
	if err := o.sink.Record(ctx, history.Entry{
		Question:   question,
		SQL:        sql,
		RowPreview: previewJSON,
		ExecutedAt: time.Now().UTC(),
	}); err != nil {
		observability.IncrementHistoryWriteFailure()
		o.logger.Warn("history write failed", slog.Any("error", err))
	}
}

// FallbackSQL is the deterministic query used when generation fails, times
// out, or is disabled.
func FallbackSQL(table string) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT 50", table)
}

func buildPromptContext(table string, columns []dataset.ColumnMapping, transcript, question string) string {
	var sb strings.Builder
	sb.WriteString("Table name: ")
	sb.WriteString(table)
	sb.WriteString("\n")
	if len(columns) == 0 {
		sb.WriteString("(No columns available)\n")
	} else {
		sb.WriteString("This table contains the following columns:\n")
		for _, col := range columns {
			sb.WriteString(" - ")
			sb.WriteString(col.Sanitized)
			sb.WriteString("\n")
		}
		sb.WriteString("\nWhen answering the question, use ONLY these columns.\n")
	}
	sb.WriteString("Conversation history:\n")
	sb.WriteString(transcript)
	sb.WriteString("\nUser question: ")
	sb.WriteString(question)
	sb.WriteString("\n")
	return sb.String()
}

func countSummary(rows int) string {
	if rows == 0 {
		return "No rows found."
	}
	return fmt.Sprintf("Found %d matching rows.", rows)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
