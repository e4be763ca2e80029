package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/danthegoodman1/ekdb/gologger"
	migrate "github.com/rubenv/sql-migrate"
)

const TableName = "schema_migrations"

var (
	//go:embed *.sql
	migrations embed.FS

	ErrMigrationsNotRun = fmt.Errorf("not all migrations applied")

	logger = gologger.NewLogger()
)

func migrationSet() (migrate.MigrationSet, migrate.EmbedFileSystemMigrationSource) {
	src := migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       ".",
	}
	ms := migrate.MigrationSet{
		TableName: TableName,
	}
	return ms, src
}

// RunMigrations applies every pending migration to the SQLite database db.
func RunMigrations(db *sql.DB) (int, error) {
	ms, src := migrationSet()
	n, err := ms.Exec(db, "sqlite3", src, migrate.Up)
	if err != nil {
		return n, err
	}
	if n > 0 {
		logger.Debug().Int("applied", n).Msg("applied migrations")
	}
	return n, nil
}

// CheckMigrations verifies every migration is applied without writing to db,
// so it works on read-only connections.
func CheckMigrations(db *sql.DB) error {
	_, src := migrationSet()
	all, err := src.FindMigrations()
	if err != nil {
		return fmt.Errorf("error in FindMigrations: %w", err)
	}

	applied := map[string]bool{}
	var n int
	err = db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, TableName).Scan(&n)
	if err != nil {
		return fmt.Errorf("error checking for %s: %w", TableName, err)
	}
	if n > 0 {
		rows, err := db.Query(fmt.Sprintf("SELECT id FROM %s", TableName))
		if err != nil {
			return fmt.Errorf("error reading %s: %w", TableName, err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("error scanning migration id: %w", err)
			}
			applied[id] = true
		}
		if err := rows.Err(); err != nil {
			return err
		}
	}

	missing := false
	for _, mig := range all {
		if !applied[mig.Id] {
			logger.Warn().Str("migrationID", mig.Id).Msg("missing migration")
			missing = true
		}
	}
	if missing {
		return ErrMigrationsNotRun
	}
	return nil
}
