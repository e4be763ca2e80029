package parquet_accumulator

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

type (
	// ParquetSchemaAccumulator builds a parquet JSON schema from declared SQLite
	// column types and, for untyped columns, from the values it is shown.
	ParquetSchemaAccumulator struct {
		schema ParquetSchema
	}

	ParquetSchema struct {
		TagStructs SchemaTag        `json:"-,omitempty"`
		Fields     []*ParquetSchema `json:",omitempty"`
	}

	ParquetJSONSchema struct {
		Tag    string               `json:",omitempty"`
		Fields []*ParquetJSONSchema `json:",omitempty"`
	}

	SchemaTag struct {
		Name           string         `json:"name,omitempty"`
		Type           string         `json:"type,omitempty"`
		ConvertedType  string         `json:"convertedtype,omitempty"`
		RepetitionType RepetitionType `json:"repetitiontype,omitempty"`
		Encoding       string         `json:"encoding,omitempty"`
	}

	RepetitionType string
)

var (
	Optional RepetitionType = "OPTIONAL"
	Required RepetitionType = "REQUIRED"
)

func NewParquetAccumulator() ParquetSchemaAccumulator {
	return ParquetSchemaAccumulator{
		schema: ParquetSchema{
			TagStructs: SchemaTag{
				Name:           "parquet_go_root",
				RepetitionType: Required,
			},
		},
	}
}

// DeclareColumn adds a column from its SQLite declared type. It returns false
// when the type does not say what the values are, so they must be inferred with WriteRow.
func (pa *ParquetSchemaAccumulator) DeclareColumn(name, sqliteType string) bool {
	if pa.fieldExists(name) {
		return true
	}
	t := strings.ToUpper(sqliteType)
	schema := &ParquetSchema{TagStructs: SchemaTag{Name: name, RepetitionType: Optional}}
	switch {
	case strings.Contains(t, "INT"):
		schema.TagStructs.Type = "INT64"
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		schema.TagStructs.Type = "DOUBLE"
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		setString(schema)
	default:
		return false
	}
	pa.schema.Fields = append(pa.schema.Fields, schema)
	return true
}

// WriteRow adds any column of the row that has no field yet, typed by its
// value, and widens existing fields the value does not fit (INT64 to DOUBLE,
// anything to string). Null values never decide a type.
func (pa *ParquetSchemaAccumulator) WriteRow(cols []string, vals []any) {
	for i, key := range cols {
		if i >= len(vals) || vals[i] == nil {
			continue
		}
		rowSchema := pa.getParquetSchema(key, vals[i])
		if rowSchema == nil {
			continue
		}
		field := pa.field(key)
		if field == nil {
			pa.schema.Fields = append(pa.schema.Fields, rowSchema)
			continue
		}
		switch {
		case field.TagStructs.Type == rowSchema.TagStructs.Type, field.TagStructs.Type == "BYTE_ARRAY":
		case field.TagStructs.Type == "INT64" && rowSchema.TagStructs.Type == "DOUBLE":
			field.TagStructs.Type = "DOUBLE"
		case field.TagStructs.Type == "DOUBLE" && rowSchema.TagStructs.Type == "INT64":
		default:
			setString(field)
		}
	}
}

// RowMap converts a row to a JSON-ready map whose values match the accumulated field types.
func (pa *ParquetSchemaAccumulator) RowMap(cols []string, vals []any) map[string]any {
	m := make(map[string]any, len(cols))
	for i, key := range cols {
		if i >= len(vals) || vals[i] == nil {
			continue
		}
		field := pa.field(key)
		if field == nil {
			continue
		}
		v := vals[i]
		if b, ok := v.(bool); ok {
			v = int64(0)
			if b {
				v = int64(1)
			}
		}
		switch field.TagStructs.Type {
		case "BYTE_ARRAY":
			if raw, ok := v.([]byte); ok {
				v = string(raw)
			}
			m[key] = fmt.Sprint(v)
		case "DOUBLE":
			if n, ok := v.(int64); ok {
				v = float64(n)
			}
			m[key] = v
		default:
			m[key] = v
		}
	}
	return m
}

// EnsureColumns adds every column still missing (all values null) as an optional string.
func (pa *ParquetSchemaAccumulator) EnsureColumns(cols []string) {
	for _, key := range cols {
		if pa.fieldExists(key) {
			continue
		}
		schema := &ParquetSchema{TagStructs: SchemaTag{Name: key, RepetitionType: Optional}}
		setString(schema)
		pa.schema.Fields = append(pa.schema.Fields, schema)
	}
}

func setString(schema *ParquetSchema) {
	schema.TagStructs.Type = "BYTE_ARRAY"
	schema.TagStructs.ConvertedType = "UTF8"
	schema.TagStructs.Encoding = "PLAIN"
}

// getParquetSchema returns the schema of a single non-null value
func (pa *ParquetSchemaAccumulator) getParquetSchema(key string, item any) *ParquetSchema {
	schema := &ParquetSchema{
		TagStructs: SchemaTag{
			Name:           key,
			RepetitionType: Optional,
		},
	}
	reflectType := reflect.TypeOf(item)
	if reflectType.Kind() == reflect.Ptr {
		reflectType = reflectType.Elem()
	}

	switch reflectType.Kind() {
	case reflect.String:
		setString(schema)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Bool:
		schema.TagStructs.Type = "INT64"
	case reflect.Float32, reflect.Float64:
		schema.TagStructs.Type = "DOUBLE"
	case reflect.Slice:
		// blobs
		setString(schema)
	default:
		return nil
	}

	return schema
}

func (pa *ParquetSchemaAccumulator) field(fieldName string) *ParquetSchema {
	for _, field := range pa.schema.Fields {
		if field.TagStructs.Name == fieldName {
			return field
		}
	}
	return nil
}

func (pa *ParquetSchemaAccumulator) fieldExists(fieldName string) bool {
	return pa.field(fieldName) != nil
}

func (pa *ParquetSchemaAccumulator) GetColumnNames() []string {
	var cols []string
	for _, field := range pa.schema.Fields {
		cols = append(cols, field.TagStructs.Name)
	}
	return cols
}

func (ps *ParquetSchema) GetType() string {
	switch ps.TagStructs.Type {
	case "BYTE_ARRAY":
		return "string"
	case "DOUBLE":
		return "float"
	case "INT64":
		return "int"
	default:
		return "unknown"
	}
}

// GetColumnTypes returns the types of columns in the same order, either `string`, `float` or `int`
func (pa *ParquetSchemaAccumulator) GetColumnTypes() []string {
	var cols []string
	for _, field := range pa.schema.Fields {
		cols = append(cols, field.GetType())
	}
	return cols
}

// ToParquetJSONSchema recursively converts
func (ps *ParquetSchema) ToParquetJSONSchema() *ParquetJSONSchema {
	var tagArr []string
	if ps.TagStructs.Type != "" {
		tagArr = append(tagArr, "type="+ps.TagStructs.Type)
	}
	if ps.TagStructs.ConvertedType != "" {
		tagArr = append(tagArr, "convertedtype="+ps.TagStructs.ConvertedType)
	}
	if ps.TagStructs.Encoding != "" {
		tagArr = append(tagArr, "encoding="+ps.TagStructs.Encoding)
	}
	if ps.TagStructs.Name != "" {
		tagArr = append(tagArr, "name="+ps.TagStructs.Name)
	}
	if string(ps.TagStructs.RepetitionType) != "" {
		tagArr = append(tagArr, "repetitiontype="+string(ps.TagStructs.RepetitionType))
	}
	var fields []*ParquetJSONSchema
	for _, field := range ps.Fields {
		fields = append(fields, field.ToParquetJSONSchema())
	}
	return &ParquetJSONSchema{
		Tag:    strings.Join(tagArr, ", "),
		Fields: fields,
	}
}

// GetSchemaString returns the JSON formatted schema string
func (pa *ParquetSchemaAccumulator) GetSchemaString() (string, error) {
	var fields []*ParquetJSONSchema
	for _, field := range pa.schema.Fields {
		fields = append(fields, field.ToParquetJSONSchema())
	}
	pjs := ParquetJSONSchema{
		Tag:    "name=parquet_go_root, repetitiontype=REQUIRED",
		Fields: fields,
	}

	b, err := json.Marshal(pjs)
	if err != nil {
		return "", fmt.Errorf("error in json.Marshal: %w", err)
	}
	return string(b), nil
}
