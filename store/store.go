package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danthegoodman1/ekdb/gologger"
	"github.com/danthegoodman1/ekdb/migrations"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

var (
	ErrNoSuchTable = errors.New("no such table")
	// ErrTypeMismatch means a value would be converted by the affinity of its column.
	ErrTypeMismatch = errors.New("value does not fit column type")

	logger = gologger.NewLogger()
)

type (
	// Store is a single-file SQLite database holding one table per synced remote table.
	Store struct {
		db   *sql.DB
		path string
	}

	queryer interface {
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	}

	Column struct {
		Name string
		// INTEGER, REAL or TEXT
		Type string
	}

	// TableSchema describes a table to create. PrimaryKey must be one of Columns.
	TableSchema struct {
		Name       string
		PrimaryKey string
		Columns    []Column
	}

	// Batch is a run of rows ordered by primary key, shaped like an API page.
	Batch struct {
		Columns []string
		Rows    [][]any
		HasMore bool
		LastPK  int64
	}
)

// Open opens (creating if needed) the SQLite file at path and applies migrations.
// Pass ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error in sql.Open: %w", err)
	}
	// One connection for the whole run, so ":memory:" stays a single database too.
	db.SetMaxOpenConns(1)

	if _, err := migrations.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error in RunMigrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// OpenReadOnly opens the existing SQLite file at path without running
// migrations. Every write through the returned Store fails.
func OpenReadOnly(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("error in sql.Open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error opening %s read-only: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableExists reports whether table is present in the database.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error checking for table %s: %w", table, err)
	}
	return n > 0, nil
}

// MaxPK returns the largest value of pk in table. ok is false when the table is empty.
// A missing table returns ErrNoSuchTable.
func (s *Store) MaxPK(ctx context.Context, table, pk string) (maxPK int64, ok bool, err error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return 0, false, err
	}
	if !exists {
		return 0, false, fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}

	var v sql.NullInt64
	q := fmt.Sprintf("SELECT MAX(%s) FROM %s", quoteIdent(pk), quoteIdent(table))
	if err := s.db.QueryRowContext(ctx, q).Scan(&v); err != nil {
		return 0, false, fmt.Errorf("error selecting max %s from %s: %w", pk, table, err)
	}
	return v.Int64, v.Valid, nil
}

// Columns returns the column names of table in declaration order.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	info, err := s.ColumnInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(info))
	for i, c := range info {
		cols[i] = c.Name
	}
	return cols, nil
}

// ColumnInfo returns the columns of table with their declared types. Tables
// created without types report an empty Type.
func (s *Store) ColumnInfo(ctx context.Context, table string) ([]Column, error) {
	return columnInfo(ctx, s.db, table)
}

func columnInfo(ctx context.Context, q queryer, table string) ([]Column, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("error in PRAGMA table_info: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid      int
			name     string
			colType  string
			notNull  int
			defaultV sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultV, &pk); err != nil {
			return nil, fmt.Errorf("error scanning table_info: %w", err)
		}
		cols = append(cols, Column{Name: name, Type: strings.ToUpper(colType)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}
	return cols, nil
}

func createTableSQL(ts TableSchema) (string, error) {
	if len(ts.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", ts.Name)
	}
	var defs []string
	hasPK := false
	for _, col := range ts.Columns {
		if col.Name == ts.PrimaryKey {
			hasPK = true
			defs = append(defs, quoteIdent(col.Name)+" INTEGER PRIMARY KEY")
			continue
		}
		colType := col.Type
		if colType == "" {
			colType = TypeText
		}
		defs = append(defs, quoteIdent(col.Name)+" "+colType)
	}
	if !hasPK {
		return "", fmt.Errorf("table %s: primary key %s is not among its columns", ts.Name, ts.PrimaryKey)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(ts.Name), strings.Join(defs, ", ")), nil
}

// WritePage inserts rows into table inside one transaction, creating the table
// first when create is not nil. Values bind positionally to columns. A value
// the declared column type would convert fails the page with ErrTypeMismatch.
func (s *Store) WritePage(ctx context.Context, create *TableSchema, table string, columns []string, rows [][]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error in BeginTx: %w", err)
	}
	defer tx.Rollback()

	var declared []Column
	if create != nil {
		q, err := createTableSQL(*create)
		if err != nil {
			return err
		}
		logger.Debug().Str("table", create.Name).Str("sql", q).Msg("creating table")
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("error creating table %s: %w", create.Name, err)
		}
		for _, c := range create.Columns {
			switch {
			case c.Name == create.PrimaryKey:
				c.Type = TypeInteger
			case c.Type == "":
				c.Type = TypeText
			}
			declared = append(declared, c)
		}
	} else if len(rows) > 0 {
		if declared, err = columnInfo(ctx, tx, table); err != nil {
			return err
		}
	}

	if len(rows) > 0 {
		types := make([]string, len(columns))
		for i, c := range columns {
			for _, d := range declared {
				if d.Name == c {
					types[i] = d.Type
				}
			}
		}

		quoted := make([]string, len(columns))
		placeholders := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = quoteIdent(c)
			placeholders[i] = "?"
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("error preparing insert into %s: %w", table, err)
		}
		defer stmt.Close()

		args := make([]any, len(columns))
		for i, row := range rows {
			if len(row) != len(columns) {
				return fmt.Errorf("row %d has %d values for %d columns", i, len(row), len(columns))
			}
			for j, v := range row {
				if args[j], err = bindTyped(v, types[j]); err != nil {
					return fmt.Errorf("error binding %s of row %d: %w", columns[j], i, err)
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("error inserting row %d into %s: %w", i, table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error in Commit: %w", err)
	}
	return nil
}

// bindTyped checks v against the declared column type before binding it, so
// SQLite affinity never rewrites a value. Untyped columns take anything.
func bindTyped(v any, colType string) (any, error) {
	switch colType {
	case TypeInteger:
		switch val := v.(type) {
		case nil, int, int64, bool:
		case json.Number:
			if _, err := val.Int64(); err != nil {
				return nil, fmt.Errorf("%w: %s in an INTEGER column", ErrTypeMismatch, val)
			}
		case float64:
			if val != float64(int64(val)) {
				return nil, fmt.Errorf("%w: %v in an INTEGER column", ErrTypeMismatch, val)
			}
		default:
			return nil, fmt.Errorf("%w: %T %v in an INTEGER column", ErrTypeMismatch, v, v)
		}
	case TypeReal:
		switch v.(type) {
		case nil, int, int64, float64, json.Number:
		default:
			return nil, fmt.Errorf("%w: %T %v in a REAL column", ErrTypeMismatch, v, v)
		}
	case TypeText:
		// keep the number exactly as it was sent
		if n, ok := v.(json.Number); ok {
			return n.String(), nil
		}
	}
	return bindValue(v)
}

// bindValue converts a decoded JSON value to something the driver can store.
func bindValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val, nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		if f, err := val.Float64(); err == nil {
			return f, nil
		}
		return val.String(), nil
	case int:
		return int64(val), nil
	case []byte:
		return val, nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("error in json.Marshal: %w", err)
		}
		return string(b), nil
	}
}

// ListTables returns every user table, excluding sqlite internals and the migration log.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		AND name NOT LIKE 'sqlite_%'
		AND name != ?
		ORDER BY name
	`, migrations.TableName)
	if err != nil {
		return nil, fmt.Errorf("error listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("error scanning table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting rows of %s: %w", table, err)
	}
	return n, nil
}

// ReadBatch returns up to limit rows of table with pk >= start, ordered by pk.
func (s *Store) ReadBatch(ctx context.Context, table, pk string, start int64, limit int) (*Batch, error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}

	q := fmt.Sprintf("SELECT * FROM %s WHERE %s >= ? ORDER BY %s LIMIT ?", quoteIdent(table), quoteIdent(pk), quoteIdent(pk))
	rows, err := s.db.QueryContext(ctx, q, start, limit+1)
	if err != nil {
		return nil, fmt.Errorf("error reading batch from %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	pkIdx := -1
	for i, c := range cols {
		if c == pk {
			pkIdx = i
		}
	}
	if pkIdx < 0 {
		return nil, fmt.Errorf("table %s has no column %s", table, pk)
	}

	b := &Batch{Columns: cols, Rows: make([][]any, 0, limit)}
	for rows.Next() {
		if len(b.Rows) == limit {
			b.HasMore = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		for i, v := range vals {
			if raw, ok := v.([]byte); ok {
				vals[i] = string(raw)
			}
		}
		if id, ok := vals[pkIdx].(int64); ok {
			b.LastPK = id
		}
		b.Rows = append(b.Rows, vals)
	}
	return b, rows.Err()
}

// ScanRows calls f for every row of table in rowid order. vals is reused between calls.
func (s *Store) ScanRows(ctx context.Context, table string, f func(cols []string, vals []any) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return fmt.Errorf("error selecting from %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		for i, v := range vals {
			if raw, ok := v.([]byte); ok {
				vals[i] = string(raw)
			}
		}
		if err := f(cols, vals); err != nil {
			return err
		}
	}
	return rows.Err()
}
