// Package postgres persists query-history records.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/querybot/querybot/internal/history"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, entry history.Entry) error {
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
INSERT INTO query_history (id, nl_query, generated_sql, result_preview, executed_at)
VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.ExecContext(ctx, query, id, entry.Question, entry.SQL, entry.RowPreview, entry.ExecutedAt); err != nil {
		return fmt.Errorf("record query history: %w", err)
	}
	return nil
}
