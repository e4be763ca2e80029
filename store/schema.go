package store

import (
	"encoding/json"
	"strings"
)

const (
	TypeInteger = "INTEGER"
	TypeReal    = "REAL"
	TypeText    = "TEXT"
)

// InferType picks a column type for a decoded JSON value. Unknown values
// (including null) become TEXT.
func InferType(v any) string {
	switch val := v.(type) {
	case json.Number:
		if _, err := val.Int64(); err == nil {
			return TypeInteger
		}
		if strings.ContainsAny(val.String(), ".eE") {
			return TypeReal
		}
		return TypeText
	case int, int64, bool:
		return TypeInteger
	case float64:
		if val == float64(int64(val)) {
			return TypeInteger
		}
		return TypeReal
	default:
		return TypeText
	}
}

// InferSchema builds a schema for table from the first non-null value seen in
// each column of rows. columns and rows must already be aligned.
func InferSchema(table, primaryKey string, columns []string, rows [][]any) TableSchema {
	ts := TableSchema{
		Name:       table,
		PrimaryKey: primaryKey,
		Columns:    make([]Column, len(columns)),
	}
	for i, name := range columns {
		ts.Columns[i] = Column{Name: name, Type: TypeText}
		for _, row := range rows {
			if i < len(row) && row[i] != nil {
				ts.Columns[i].Type = InferType(row[i])
				break
			}
		}
	}
	return ts
}
