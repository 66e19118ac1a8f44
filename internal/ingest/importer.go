// Package ingest turns already-parsed upload rows into a registered
// dataset: rows are encoded as parquet, written to the object store, and
// recorded in dataset metadata. File-format parsing and type inference
// happen upstream; this path receives row maps and a column mapping.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querybot/querybot/internal/dataset"
	"github.com/querybot/querybot/internal/storage"
)

type Importer struct {
	Store     storage.ObjectStore
	Registrar dataset.Registrar
	Logger    *slog.Logger
	Now       func() time.Time
}

type ImportInput struct {
	TableName        string
	OriginalFilename string
	Columns          []dataset.ColumnMapping
	Rows             []map[string]any
}

func (i *Importer) Import(ctx context.Context, in ImportInput) (dataset.Dataset, error) {
	if i.Store == nil || i.Registrar == nil {
		return dataset.Dataset{}, fmt.Errorf("object store and registrar are required")
	}
	if len(in.Columns) == 0 {
		return dataset.Dataset{}, fmt.Errorf("column mapping is required")
	}

	now := time.Now
	if i.Now != nil {
		now = i.Now
	}
	objectPath, err := storage.BuildDatasetObjectPath(in.TableName, now().UTC())
	if err != nil {
		return dataset.Dataset{}, err
	}

	data, err := EncodeRowsToParquet(in.TableName, in.Columns, in.Rows)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("encode dataset parquet: %w", err)
	}

	if _, err := i.Store.Put(ctx, objectPath, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		return dataset.Dataset{}, fmt.Errorf("store dataset object: %w", err)
	}

	registered, err := i.Registrar.RegisterDataset(ctx, dataset.Registration{
		TableName:        in.TableName,
		OriginalFilename: in.OriginalFilename,
		Columns:          in.Columns,
		ObjectPath:       objectPath,
		RowCount:         int64(len(in.Rows)),
	})
	if err != nil {
		if deleteErr := i.Store.Delete(ctx, objectPath); deleteErr != nil && i.Logger != nil {
			i.Logger.Warn("orphaned dataset object after failed registration",
				slog.String("object_path", objectPath), slog.Any("error", deleteErr))
		}
		return dataset.Dataset{}, fmt.Errorf("register dataset: %w", err)
	}
	return registered, nil
}

// EncodeRowsToParquet writes row maps into a single parquet buffer. Every
// column is optional; a value whose first non-null occurrence is numeric or
// boolean keeps that type, everything else is stored as a string.
func EncodeRowsToParquet(tableName string, columns []dataset.ColumnMapping, rows []map[string]any) ([]byte, error) {
	group := parquet.Group{}
	kinds := make(map[string]valueKind, len(columns))
	for _, col := range columns {
		kind := columnKind(col.Sanitized, rows)
		kinds[col.Sanitized] = kind
		group[col.Sanitized] = parquet.Optional(kind.node())
	}
	schema := parquet.NewSchema(tableName, group)

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[map[string]any](buf, schema)
	for _, row := range rows {
		normalized := make(map[string]any, len(columns))
		for _, col := range columns {
			value, ok := row[col.Sanitized]
			if !ok || value == nil {
				continue
			}
			if converted := kinds[col.Sanitized].convert(value); converted != nil {
				normalized[col.Sanitized] = converted
			}
		}
		if _, err := writer.Write([]map[string]any{normalized}); err != nil {
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

type valueKind int

const (
	kindString valueKind = iota
	kindFloat
	kindInt
	kindBool
)

func columnKind(column string, rows []map[string]any) valueKind {
	for _, row := range rows {
		value, ok := row[column]
		if !ok || value == nil {
			continue
		}
		switch value.(type) {
		case float32, float64:
			return kindFloat
		case int, int32, int64:
			return kindInt
		case bool:
			return kindBool
		default:
			return kindString
		}
	}
	return kindString
}

func (k valueKind) node() parquet.Node {
	switch k {
	case kindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case kindInt:
		return parquet.Int(64)
	case kindBool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

// convert coerces a value to the column's parquet type. A value that cannot
// be coerced becomes null rather than failing the whole import.
func (k valueKind) convert(value any) any {
	switch k {
	case kindFloat:
		switch typed := value.(type) {
		case float64:
			return typed
		case float32:
			return float64(typed)
		case int:
			return float64(typed)
		case int64:
			return float64(typed)
		}
		return nil
	case kindInt:
		switch typed := value.(type) {
		case int64:
			return typed
		case int:
			return int64(typed)
		case int32:
			return int64(typed)
		}
		return nil
	case kindBool:
		if typed, ok := value.(bool); ok {
			return typed
		}
		return nil
	default:
		if typed, ok := value.(string); ok {
			return typed
		}
		return fmt.Sprintf("%v", value)
	}
}
