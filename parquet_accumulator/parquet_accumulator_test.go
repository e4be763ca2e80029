package parquet_accumulator

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/danthegoodman1/ekdb/store"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func TestGetSchemaString(t *testing.T) {
	a := NewParquetAccumulator()
	a.DeclareColumn("Id", "INTEGER")
	a.WriteRow([]string{"Id", "colA"}, []any{int64(1), "hey"})
	a.WriteRow([]string{"colB"}, []any{1.2})
	a.WriteRow([]string{"colA", "colB"}, []any{"hey", nil})

	schemaString, err := a.GetSchemaString()
	if err != nil {
		t.Fatal(err)
	}
	if schemaString != `{"Tag":"name=parquet_go_root, repetitiontype=REQUIRED","Fields":[{"Tag":"type=INT64, name=Id, repetitiontype=OPTIONAL"},{"Tag":"type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN, name=colA, repetitiontype=OPTIONAL"},{"Tag":"type=DOUBLE, name=colB, repetitiontype=OPTIONAL"}]}` {
		t.Log(schemaString)
		t.Fatal("got incorrect schema string")
	}
}

func TestDeclareColumnUntyped(t *testing.T) {
	a := NewParquetAccumulator()
	if a.DeclareColumn("Legacy", "") {
		t.Fatal("untyped column should need inference")
	}
	a.WriteRow([]string{"Legacy"}, []any{nil})
	a.EnsureColumns([]string{"Legacy"})
	if !reflect.DeepEqual(a.GetColumnTypes(), []string{"string"}) {
		t.Fatalf("all-null column should fall back to string, got %v", a.GetColumnTypes())
	}
}

func TestWriteRowWidens(t *testing.T) {
	a := NewParquetAccumulator()
	a.DeclareColumn("Num", "INTEGER")
	a.DeclareColumn("Mixed", "INTEGER")
	a.WriteRow([]string{"Num", "Mixed"}, []any{1.5, "not a number"})
	a.WriteRow([]string{"Num", "Mixed"}, []any{int64(2), int64(3)})

	if !reflect.DeepEqual(a.GetColumnTypes(), []string{"float", "string"}) {
		t.Fatalf("unexpected types %v", a.GetColumnTypes())
	}

	m := a.RowMap([]string{"Num", "Mixed"}, []any{int64(2), int64(3)})
	if m["Num"] != float64(2) || m["Mixed"] != "3" {
		t.Fatalf("unexpected row map %+v", m)
	}
	m = a.RowMap([]string{"Num", "Mixed"}, []any{nil, nil})
	if len(m) != 0 {
		t.Fatalf("nulls should be omitted, got %+v", m)
	}
}

func TestExportTable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "export.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	schema := &store.TableSchema{
		Name:       "Example",
		PrimaryKey: "Id",
		Columns: []store.Column{
			{Name: "Id", Type: store.TypeInteger},
			{Name: "Name", Type: store.TypeText},
			{Name: "Score", Type: store.TypeReal},
		},
	}
	rows := [][]any{
		{int64(1), "a", 0.5},
		{int64(2), nil, 1.5},
		{int64(3), "c", nil},
	}
	if err := st.WritePage(ctx, schema, "Example", []string{"Id", "Name", "Score"}, rows); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "Example.parquet")
	n, err := ExportTable(ctx, st, "Example", out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows written, got %d", n)
	}

	fr, err := local.NewLocalFileReader(out)
	if err != nil {
		t.Fatal("Can't open file", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 4)
	if err != nil {
		t.Fatal("Can't create parquet reader", err)
	}
	defer pr.ReadStop()
	if pr.GetNumRows() != 3 {
		t.Fatalf("parquet file has %d rows", pr.GetNumRows())
	}
}
