package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/querybot/querybot/internal/dataset"
	"github.com/querybot/querybot/internal/ingest"
)

type registerDatasetRequest struct {
	TableName        string                  `json:"table_name"`
	OriginalFilename string                  `json:"original_filename,omitempty"`
	Columns          []dataset.ColumnMapping `json:"columns"`
	Rows             []map[string]any        `json:"rows"`
}

type datasetResponse struct {
	ID           int64                   `json:"id"`
	TableName    string                  `json:"table_name"`
	Columns      []dataset.ColumnMapping `json:"columns"`
	ObjectPath   string                  `json:"object_path"`
	RowCount     int64                   `json:"row_count"`
	RegisteredAt time.Time               `json:"registered_at"`
}

func handleRegisterDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Importer == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "IMPORT_UNAVAILABLE", "dataset import is not configured", true, nil)
		return
	}

	var req registerDatasetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImportBody)).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", false, nil)
		return
	}
	if req.TableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "table_name is required", false, nil)
		return
	}
	if len(req.Columns) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "columns are required", false, nil)
		return
	}

	registered, err := deps.Importer.Import(r.Context(), ingest.ImportInput{
		TableName:        req.TableName,
		OriginalFilename: req.OriginalFilename,
		Columns:          req.Columns,
		Rows:             req.Rows,
	})
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "dataset import failed", "table", req.TableName, "error", err)
		}
		writeError(r.Context(), w, http.StatusBadRequest, "DATASET_IMPORT_FAILED", err.Error(), false, nil)
		return
	}

	writeJSON(w, http.StatusCreated, toDatasetResponse(registered))
}

func handleListDatasets(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Datasets == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATASETS_UNAVAILABLE", "dataset metadata is not configured", true, nil)
		return
	}

	datasets, err := deps.Datasets.ListDatasets(r.Context())
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "list datasets failed", "error", err)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", "failed to list datasets", true, nil)
		return
	}

	out := make([]datasetResponse, 0, len(datasets))
	for _, d := range datasets {
		out = append(out, toDatasetResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

func toDatasetResponse(d dataset.Dataset) datasetResponse {
	return datasetResponse{
		ID:           d.ID,
		TableName:    d.TableName,
		Columns:      d.Columns,
		ObjectPath:   d.ObjectPath,
		RowCount:     d.RowCount,
		RegisteredAt: d.RegisteredAt,
	}
}

// maxImportBody bounds an upload payload; rows arrive already parsed as JSON.
const maxImportBody = 32 << 20
