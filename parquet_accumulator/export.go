package parquet_accumulator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danthegoodman1/ekdb/store"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
)

// BuildTableSchema accumulates the parquet schema of table from its declared
// column types and a full scan of its values.
func BuildTableSchema(ctx context.Context, st *store.Store, table string) (ParquetSchemaAccumulator, error) {
	acc := NewParquetAccumulator()
	info, err := st.ColumnInfo(ctx, table)
	if err != nil {
		return acc, fmt.Errorf("error in ColumnInfo: %w", err)
	}
	cols := make([]string, len(info))
	for i, c := range info {
		cols[i] = c.Name
		acc.DeclareColumn(c.Name, c.Type)
	}
	err = st.ScanRows(ctx, table, func(cols []string, vals []any) error {
		acc.WriteRow(cols, vals)
		return nil
	})
	if err != nil {
		return acc, fmt.Errorf("error in ScanRows: %w", err)
	}
	acc.EnsureColumns(cols)
	return acc, nil
}

// ExportTable writes every row of table to a parquet file at path and returns the number of rows written.
func ExportTable(ctx context.Context, st *store.Store, table, path string) (int64, error) {
	acc, err := BuildTableSchema(ctx, st, table)
	if err != nil {
		return 0, err
	}
	parquetSchema, err := acc.GetSchemaString()
	if err != nil {
		return 0, fmt.Errorf("error in GetSchemaString: %w", err)
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return 0, fmt.Errorf("error in local.NewLocalFileWriter: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewJSONWriter(parquetSchema, fw, 4)
	if err != nil {
		return 0, fmt.Errorf("error in writer.NewJSONWriter: %w", err)
	}

	var n int64
	err = st.ScanRows(ctx, table, func(cols []string, vals []any) error {
		rowBytes, err := json.Marshal(acc.RowMap(cols, vals))
		if err != nil {
			return fmt.Errorf("error in json.Marshal of row: %w", err)
		}
		if err := pw.Write(string(rowBytes)); err != nil {
			return fmt.Errorf("error in pw.Write for row %s: %w", string(rowBytes), err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	if err := pw.WriteStop(); err != nil {
		return n, fmt.Errorf("error in pw.WriteStop: %w", err)
	}
	return n, nil
}
