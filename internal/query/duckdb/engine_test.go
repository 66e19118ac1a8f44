package duckdb

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/querybot/querybot/internal/query"
	"github.com/querybot/querybot/internal/storage"
)

type salesRow struct {
	Product string  `parquet:"product"`
	Amount  float64 `parquet:"amount"`
}

func TestExecuteReadsParquetThroughObjectStore(t *testing.T) {
	parquetBytes, err := buildParquet([]salesRow{
		{Product: "laptop", Amount: 1200},
		{Product: "mouse", Amount: 25},
	})
	if err != nil {
		t.Fatalf("buildParquet() error = %v", err)
	}

	store := &memoryStore{objects: map[string][]byte{"datasets/sales/data.parquet": parquetBytes}}
	engine := NewEngine(store)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:     "SELECT product, amount FROM sales ORDER BY amount DESC LIMIT 1",
		Dataset: query.DatasetFile{TableName: "sales", ObjectPath: "datasets/sales/data.parquet"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != "laptop" {
		t.Fatalf("product = %#v", result.Rows[0][0])
	}
	if len(result.Columns) != 2 || result.Columns[0] != "product" {
		t.Fatalf("columns = %#v", result.Columns)
	}
}

func TestExecuteAppliesRowLimit(t *testing.T) {
	parquetBytes, err := buildParquet([]salesRow{
		{Product: "a", Amount: 1},
		{Product: "b", Amount: 2},
		{Product: "c", Amount: 3},
	})
	if err != nil {
		t.Fatalf("buildParquet() error = %v", err)
	}

	store := &memoryStore{objects: map[string][]byte{"datasets/sales/data.parquet": parquetBytes}}
	engine := NewEngine(store)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:      "SELECT product FROM sales",
		RowLimit: 2,
		Dataset:  query.DatasetFile{TableName: "sales", ObjectPath: "datasets/sales/data.parquet"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
}

func TestExecuteRejectsEmptySQL(t *testing.T) {
	engine := NewEngine(&memoryStore{})
	_, err := engine.Execute(context.Background(), query.Request{
		SQL:     "   ",
		Dataset: query.DatasetFile{TableName: "sales", ObjectPath: "p"},
	})
	if err == nil {
		t.Fatal("expected error for empty sql")
	}
}

func TestRowMapsKeepsColumnValues(t *testing.T) {
	result := query.Result{
		Columns: []string{"product", "amount"},
		Rows:    [][]any{{"laptop", float64(1200)}},
	}
	maps := result.RowMaps()
	if len(maps) != 1 {
		t.Fatalf("maps = %d", len(maps))
	}
	if maps[0]["product"] != "laptop" {
		t.Fatalf("product = %#v", maps[0]["product"])
	}
}

func buildParquet(rows []salesRow) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[salesRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, size int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}
