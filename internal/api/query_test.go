package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/querybot/querybot/internal/dataset"
	"github.com/querybot/querybot/internal/memory"
	"github.com/querybot/querybot/internal/orchestrator"
)

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRunQueryReturnsPipelineResult(t *testing.T) {
	summary := "One sale of 1200."
	runner := &fakeRunner{resp: orchestrator.Response{
		SQL:     "SELECT amount FROM sales ORDER BY amount DESC LIMIT 1",
		Columns: []string{"amount"},
		Rows:    []map[string]any{{"amount": float64(1200)}},
		Summary: &summary,
	}}
	h := NewHandler(testConfig(t), Dependencies{Runner: runner})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postJSON("/v1/query/nl", `{"question":"most expensive item","session_id":"s1"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	var resp runQueryResponse
	decodeBody(t, rr, &resp)
	if resp.SQL != "SELECT amount FROM sales ORDER BY amount DESC LIMIT 1" {
		t.Fatalf("sql = %q", resp.SQL)
	}
	if resp.Summary == nil || *resp.Summary != summary {
		t.Fatalf("summary = %v", resp.Summary)
	}
	if runner.lastReq.SessionKey != "s1" {
		t.Fatalf("session key = %q", runner.lastReq.SessionKey)
	}
}

func TestRunQuerySessionHeaderWinsOverBody(t *testing.T) {
	runner := &fakeRunner{resp: orchestrator.Response{SQL: "SELECT 1"}}
	h := NewHandler(testConfig(t), Dependencies{Runner: runner})

	req := postJSON("/v1/query/nl", `{"question":"q","session_id":"body-session"}`)
	req.Header.Set(sessionHeader, "header-session")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if runner.lastReq.SessionKey != "header-session" {
		t.Fatalf("session key = %q", runner.lastReq.SessionKey)
	}
}

func TestRunQueryRequiresQuestion(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{Runner: &fakeRunner{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postJSON("/v1/query/nl", `{"session_id":"s1"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "INVALID_REQUEST" {
		t.Fatalf("error_code = %q", code)
	}
}

func TestRunQueryErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "no dataset",
			err:        dataset.ErrNoDataset,
			wantStatus: http.StatusNotFound,
			wantCode:   "NO_DATASET",
		},
		{
			name:       "unauthorized table",
			err:        fmt.Errorf("%w: requested %q, active %q", dataset.ErrUnauthorizedTable, "other_table", "sales"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "UNAUTHORIZED_TABLE",
		},
		{
			name:       "policy violation",
			err:        &orchestrator.PolicyViolationError{Reason: orchestrator.ReasonNotSelectOnly},
			wantStatus: http.StatusBadRequest,
			wantCode:   "POLICY_VIOLATION",
		},
		{
			name:       "execution failed",
			err:        &orchestrator.ExecutionError{SQL: "SELECT x FROM sales", Err: errors.New("binder error")},
			wantStatus: http.StatusBadRequest,
			wantCode:   "QUERY_EXECUTION_FAILED",
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(testConfig(t), Dependencies{Runner: &fakeRunner{err: tc.err}})

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, postJSON("/v1/query/nl", `{"question":"q"}`))

			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			if code := errorCode(t, rr); code != tc.wantCode {
				t.Fatalf("error_code = %q, want %q", code, tc.wantCode)
			}
		})
	}
}

func TestTranscriptEndpoint(t *testing.T) {
	runner := &fakeRunner{messages: map[string][]memory.Message{
		"s1": {
			{Role: memory.RoleUser, Content: "most expensive item"},
			{Role: memory.RoleAssistant, Content: "FACTS: ROW1: amount=1200"},
		},
	}}
	h := NewHandler(testConfig(t), Dependencies{Runner: runner})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/query/transcript?session_id=s1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var payload struct {
		SessionID string           `json:"session_id"`
		Messages  []memory.Message `json:"messages"`
	}
	decodeBody(t, rr, &payload)
	if payload.SessionID != "s1" {
		t.Fatalf("session_id = %q", payload.SessionID)
	}
	if len(payload.Messages) != 2 {
		t.Fatalf("messages = %d", len(payload.Messages))
	}
}

func TestTranscriptRequiresSession(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{Runner: &fakeRunner{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/query/transcript", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRecordFactEndpoint(t *testing.T) {
	runner := &fakeRunner{}
	h := NewHandler(testConfig(t), Dependencies{Runner: runner})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postJSON("/v1/query/memory", `{"session_id":"s1","role":"assistant","content":"FACTS: uploaded table sales (120 rows)"}`))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if len(runner.facts) != 1 {
		t.Fatalf("facts = %d", len(runner.facts))
	}
	if runner.facts[0].role != memory.RoleAssistant {
		t.Fatalf("role = %q", runner.facts[0].role)
	}
}

func TestRecordFactRejectsUnknownRole(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{Runner: &fakeRunner{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postJSON("/v1/query/memory", `{"session_id":"s1","role":"system","content":"x"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}
