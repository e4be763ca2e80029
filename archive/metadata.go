package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/danthegoodman1/ekdb/store"
)

type (
	TableMetadata struct {
		RowCount int64 `json:"row_count"`
	}

	// Metadata is the sidecar document uploaded next to every dump.
	Metadata struct {
		SizeMB float64                  `json:"size_mb"`
		Tables map[string]TableMetadata `json:"tables"`
	}
)

// BuildMetadata sizes the database file at path and counts the rows of every table in st.
func BuildMetadata(ctx context.Context, st *store.Store, path string) (*Metadata, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error in os.Stat: %w", err)
	}
	md := &Metadata{
		SizeMB: float64(fi.Size()) / (1024 * 1024),
		Tables: map[string]TableMetadata{},
	}

	tables, err := st.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("error in ListTables: %w", err)
	}
	for _, table := range tables {
		n, err := st.CountRows(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("error in CountRows: %w", err)
		}
		md.Tables[table] = TableMetadata{RowCount: n}
	}
	return md, nil
}

// WriteMetadata writes md to path as indented JSON.
func WriteMetadata(md *Metadata, path string) error {
	b, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("error in json.MarshalIndent: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("error in os.WriteFile: %w", err)
	}
	return nil
}
