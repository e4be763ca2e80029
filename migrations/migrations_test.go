package migrations

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestCheckMigrations(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := CheckMigrations(db); !errors.Is(err, ErrMigrationsNotRun) {
		t.Fatalf("expected ErrMigrationsNotRun, got %v", err)
	}

	n, err := RunMigrations(db)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("expected migrations to be applied")
	}
	if err := CheckMigrations(db); err != nil {
		t.Fatal(err)
	}

	if n, err = RunMigrations(db); err != nil || n != 0 {
		t.Fatalf("second run applied %d migrations, err %v", n, err)
	}

	var content string
	if err := db.QueryRow(`SELECT content FROM metadata WHERE key = 'license_and_source_information'`).Scan(&content); err != nil {
		t.Fatal(err)
	}
	if content == "" {
		t.Fatal("license row is empty")
	}
}
