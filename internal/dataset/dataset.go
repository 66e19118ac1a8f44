// Package dataset defines the registered-dataset model and enforces the
// single-active-table policy: query generation and execution may only target
// the most recently registered dataset.
package dataset

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoDataset is returned when no dataset has been registered yet.
	ErrNoDataset = errors.New("dataset: no dataset available")
	// ErrUnauthorizedTable is returned when a request names a table other
	// than the active dataset.
	ErrUnauthorizedTable = errors.New("dataset: requested table is not the active dataset")
)

// ColumnMapping pairs the original uploaded header with the sanitized column
// name used in SQL. Order matters: it is the dataset's column order.
type ColumnMapping struct {
	Original  string `json:"original"`
	Sanitized string `json:"sanitized"`
}

type Dataset struct {
	ID           int64
	TableName    string
	Columns      []ColumnMapping
	ObjectPath   string
	RowCount     int64
	RegisteredAt time.Time
}

// SanitizedColumns returns the dataset's SQL column names in column order.
func (d Dataset) SanitizedColumns() []string {
	cols := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		cols = append(cols, c.Sanitized)
	}
	return cols
}

// Provider is the external metadata collaborator. Implementations must
// return datasets with their registration identifiers; order is not assumed.
type Provider interface {
	ListDatasets(ctx context.Context) ([]Dataset, error)
}

// Registration describes a dataset being registered by the import path. The
// registration identifier is assigned by the metadata store; the newest
// registration becomes the active dataset.
type Registration struct {
	TableName        string
	OriginalFilename string
	Columns          []ColumnMapping
	ObjectPath       string
	RowCount         int64
}

type Registrar interface {
	RegisterDataset(ctx context.Context, reg Registration) (Dataset, error)
}
