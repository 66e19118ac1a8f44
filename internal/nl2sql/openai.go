package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const sqlSystemPrompt = "You are an expert SQL generator for a single-table analytics service. " +
	"Generate EXACTLY ONE SQL SELECT query. " +
	"Only SELECT is allowed: no INSERT, UPDATE, DELETE, ALTER, DROP, CREATE, or TRUNCATE. " +
	"Use ONLY the provided table and column names, never invent identifiers. " +
	"Never return SELECT * unless the user explicitly asks for all rows or the full table. " +
	"For multi-part questions use UNION ALL with parenthesized SELECT members. " +
	"For ranking words (most, highest, top, expensive, cheapest, lowest) use ORDER BY with LIMIT. " +
	"Return ONLY the SQL string: no markdown fences, no explanation, no trailing semicolon, " +
	"and never multiple statements."

const strictSummarySystem = "You are a careful data analyst. Use ONLY the provided rows and facts. " +
	"Do NOT invent rows, columns, or values. Do NOT ask the user questions or request clarification. " +
	"Do NOT output SQL, JSON, or the raw facts string. Synthesize the data into a concise natural-language answer."

const freeformSummarySystem = "You are a helpful data analyst who may answer conversationally and with opinions, " +
	"but only about values present in the provided rows and facts. Do NOT invent data. " +
	"Do NOT ask the user questions or request more information. Keep the answer focused on insights from the data."

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAIGenerator talks to any OpenAI-compatible chat-completions endpoint.
type OpenAIGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAIGenerator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (g *OpenAIGenerator) GenerateSQL(ctx context.Context, req SQLRequest) (string, error) {
	userPrompt := strings.TrimSpace(req.Context) +
		"\n\nAvailable columns: " + strings.Join(req.Columns, ", ") + "\n"

	content, err := g.complete(ctx, sqlSystemPrompt, userPrompt, 400)
	if err != nil {
		return "", err
	}

	sql := firstStatement(stripMarkdownSQL(content))
	if strings.TrimSpace(sql) == "" {
		return "", fmt.Errorf("model returned empty SQL")
	}
	return sql, nil
}

func (g *OpenAIGenerator) GenerateSummary(ctx context.Context, req SummaryRequest) (string, error) {
	system := strictSummarySystem
	if req.Conversational {
		system = freeformSummarySystem
	}

	content, err := g.complete(ctx, system, buildSummaryPrompt(req), 300)
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(content)
	if summary == "" {
		return "", fmt.Errorf("model returned empty summary")
	}
	return summary, nil
}

func buildSummaryPrompt(req SummaryRequest) string {
	var sb strings.Builder
	sb.WriteString("Conversation history:\n")
	sb.WriteString(req.Transcript)
	sb.WriteString("\n\nUser question: ")
	sb.WriteString(req.Question)
	sb.WriteString("\n\nTable: ")
	sb.WriteString(req.TableName)
	sb.WriteString(fmt.Sprintf("\n\nRows returned (%d):\n", len(req.Rows)))

	if len(req.Rows) == 0 {
		sb.WriteString("[no rows returned]\n")
	} else {
		for i, row := range req.Rows {
			sb.WriteString(fmt.Sprintf("Row %d: ", i+1))
			parts := make([]string, 0, len(req.Columns))
			for _, col := range req.Columns {
				if value, ok := row[col]; ok {
					parts = append(parts, fmt.Sprintf("%s=%v", col, value))
				}
			}
			sb.WriteString(strings.Join(parts, ", "))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nFacts: ")
	sb.WriteString(req.FactSnippet)
	sb.WriteString("\n")
	return sb.String()
}

func (g *OpenAIGenerator) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	payload := map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": g.temperature,
		"max_tokens":  maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}

// firstStatement scrubs BOMs and keeps only the text before the first
// semicolon, so a model that returns stacked statements yields one.
func firstStatement(sql string) string {
	sql = strings.TrimSpace(strings.ReplaceAll(sql, "\uFEFF", ""))
	if idx := strings.Index(sql, ";"); idx >= 0 {
		sql = strings.TrimSpace(sql[:idx])
	}
	return sql
}
