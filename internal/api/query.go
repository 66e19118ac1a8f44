package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/querybot/querybot/internal/dataset"
	"github.com/querybot/querybot/internal/memory"
	"github.com/querybot/querybot/internal/orchestrator"
)

const sessionHeader = "X-Session-ID"

const maxRequestBody = 1 << 20

type runQueryRequest struct {
	Question    string `json:"question"`
	TargetTable string `json:"target_table,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

type runQueryResponse struct {
	SQL     string           `json:"sql"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Summary *string          `json:"summary"`
}

func handleRunQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Runner == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "QUERY_UNAVAILABLE", "query pipeline is not configured", true, nil)
		return
	}

	var req runQueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", false, nil)
		return
	}
	if req.Question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "question is required", false, nil)
		return
	}
	session := sessionKey(r, req.SessionID)

	resp, err := deps.Runner.RunQuery(r.Context(), orchestrator.Request{
		Question:    req.Question,
		TargetTable: req.TargetTable,
		SessionKey:  session,
	})
	if err != nil {
		writeRunQueryError(deps, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, runQueryResponse{
		SQL:     resp.SQL,
		Columns: resp.Columns,
		Rows:    resp.Rows,
		Summary: resp.Summary,
	})
}

func writeRunQueryError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	var policyErr *orchestrator.PolicyViolationError
	var execErr *orchestrator.ExecutionError
	switch {
	case errors.Is(err, dataset.ErrNoDataset):
		writeError(r.Context(), w, http.StatusNotFound, "NO_DATASET", "no dataset has been registered yet", false, nil)
	case errors.Is(err, dataset.ErrUnauthorizedTable):
		writeError(r.Context(), w, http.StatusBadRequest, "UNAUTHORIZED_TABLE", err.Error(), false, nil)
	case errors.As(err, &policyErr):
		writeError(r.Context(), w, http.StatusBadRequest, "POLICY_VIOLATION", policyErr.Reason, false, nil)
	case errors.As(err, &execErr):
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", execErr.Error(), false, map[string]any{"sql": execErr.SQL})
	default:
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "query attempt failed", "error", err)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", "query attempt failed", true, nil)
	}
}

func handleTranscript(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Runner == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "QUERY_UNAVAILABLE", "query pipeline is not configured", true, nil)
		return
	}
	session := sessionKey(r, r.URL.Query().Get("session_id"))
	if session == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "session id is required", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session,
		"messages":   deps.Runner.Transcript(session),
	})
}

type recordFactRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// handleRecordFact injects an out-of-band message into a session log, such
// as an upload confirmation the next question can reference.
func handleRecordFact(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Runner == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "QUERY_UNAVAILABLE", "query pipeline is not configured", true, nil)
		return
	}

	var req recordFactRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", false, nil)
		return
	}
	session := sessionKey(r, req.SessionID)
	if session == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "session id is required", false, nil)
		return
	}
	if req.Role != memory.RoleUser && req.Role != memory.RoleAssistant {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "role must be user or assistant", false, nil)
		return
	}
	if req.Content == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "content is required", false, nil)
		return
	}

	deps.Runner.RecordFact(session, req.Role, req.Content)
	writeJSON(w, http.StatusAccepted, map[string]any{"session_id": session, "recorded": true})
}

// sessionKey prefers the X-Session-ID header over the body/query value.
func sessionKey(r *http.Request, fromPayload string) string {
	if header := r.Header.Get(sessionHeader); header != "" {
		return header
	}
	return fromPayload
}
