// Package postgres stores registered-dataset metadata. The datasets
// themselves live as parquet objects; only names, column mappings, and
// registration order live here.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/querybot/querybot/internal/dataset"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping metadata db: %w", err)
	}
	return nil
}

func (r *Repository) RegisterDataset(ctx context.Context, in dataset.Registration) (dataset.Dataset, error) {
	columnsJSON, err := json.Marshal(in.Columns)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("marshal column mapping: %w", err)
	}

	query := `
INSERT INTO dataset_metadata (table_name, original_filename, columns_json, object_path, row_count)
VALUES ($1, $2, $3::jsonb, $4, $5)
RETURNING id, registered_at`

	out := dataset.Dataset{
		TableName:  in.TableName,
		Columns:    in.Columns,
		ObjectPath: in.ObjectPath,
		RowCount:   in.RowCount,
	}
	if err := r.db.QueryRowContext(ctx, query,
		in.TableName, in.OriginalFilename, string(columnsJSON), in.ObjectPath, in.RowCount,
	).Scan(&out.ID, &out.RegisteredAt); err != nil {
		return dataset.Dataset{}, fmt.Errorf("register dataset: %w", err)
	}
	return out, nil
}

func (r *Repository) ListDatasets(ctx context.Context) ([]dataset.Dataset, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, table_name, columns_json, object_path, row_count, registered_at
FROM dataset_metadata
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	datasets := make([]dataset.Dataset, 0)
	for rows.Next() {
		var d dataset.Dataset
		var columnsJSON []byte
		if err := rows.Scan(&d.ID, &d.TableName, &columnsJSON, &d.ObjectPath, &d.RowCount, &d.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		if len(columnsJSON) > 0 {
			if err := json.Unmarshal(columnsJSON, &d.Columns); err != nil {
				return nil, fmt.Errorf("decode column mapping for %q: %w", d.TableName, err)
			}
		}
		datasets = append(datasets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset rows: %w", err)
	}
	return datasets, nil
}
