package archive

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/danthegoodman1/ekdb/config"
	"github.com/danthegoodman1/ekdb/migrations"
	"github.com/danthegoodman1/ekdb/store"
)

type lifecycleRule struct {
	bucket, id, prefix string
	days               int64
}

// memObjects is an in-memory bucket that records what the archiver does to it.
type memObjects struct {
	rules   []lifecycleRule
	objects map[string][]byte
	types   map[string]string
	copies  [][2]string

	failUpload string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) PutExpirationRule(_ context.Context, bucket, ruleID, prefix string, days int64) error {
	m.rules = append(m.rules, lifecycleRule{bucket, ruleID, prefix, days})
	return nil
}

func (m *memObjects) Upload(_ context.Context, bucket, key, path, contentType string) error {
	if key == m.failUpload {
		return errors.New("access denied")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.objects[bucket+"/"+key] = b
	m.types[bucket+"/"+key] = contentType
	return nil
}

func (m *memObjects) Copy(_ context.Context, bucket, srcKey, dstKey string) error {
	b, ok := m.objects[bucket+"/"+srcKey]
	if !ok {
		return errors.New("no such key")
	}
	m.objects[bucket+"/"+dstKey] = b
	m.copies = append(m.copies, [2]string{srcKey, dstKey})
	return nil
}

func seedDB(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "eduskunta_data.sqlite")
	st, err := store.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	ctx := context.Background()
	schema := &store.TableSchema{
		Name:       "Example",
		PrimaryKey: "Id",
		Columns:    []store.Column{{Name: "Id", Type: store.TypeInteger}, {Name: "Name", Type: store.TypeText}},
	}
	var rows [][]any
	for i := 1; i <= 42; i++ {
		rows = append(rows, []any{int64(i), "x"})
	}
	if err := st.WritePage(ctx, schema, "Example", []string{"Id", "Name"}, rows); err != nil {
		t.Fatal(err)
	}
	schema.Name = "Other"
	if err := st.WritePage(ctx, schema, "Other", []string{"Id", "Name"}, rows[:5]); err != nil {
		t.Fatal(err)
	}
	return p
}

func testArchiver(dbFile string, objects ObjectStore, parquet bool) *Archiver {
	a := NewArchiver(config.Archive{
		DBFile:        dbFile,
		Bucket:        "ekdb-dumps",
		Prefix:        "v1",
		Dataset:       "eduskunta_data",
		RetentionDays: 30,
		ExportParquet: parquet,
	}, objects)
	a.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestKeys(t *testing.T) {
	if got := DatedKey("v1", "eduskunta_data", "2026-10-15", "sqlite"); got != "v1/eduskunta_data.2026-10-15.sqlite" {
		t.Fatal(got)
	}
	if got := LatestKey("v1", "eduskunta_data", "metadata.json"); got != "v1/latest.eduskunta_data.metadata.json" {
		t.Fatal(got)
	}
	if got := DatedPrefix("v1", "eduskunta_data"); got != "v1/eduskunta_data." {
		t.Fatal(got)
	}
}

func TestBuildMetadataMatchesCounts(t *testing.T) {
	p := seedDB(t, t.TempDir())
	st, err := store.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	md, err := BuildMetadata(context.Background(), st, p)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]TableMetadata{
		"Example":  {RowCount: 42},
		"Other":    {RowCount: 5},
		"metadata": {RowCount: 1},
	}
	if !reflect.DeepEqual(md.Tables, want) {
		t.Fatalf("got %+v want %+v", md.Tables, want)
	}
	fi, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if md.SizeMB != float64(fi.Size())/(1024*1024) {
		t.Fatalf("unexpected size %f", md.SizeMB)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	p := seedDB(t, dir)
	objects := newMemObjects()

	res, err := testArchiver(p, objects, false).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(objects.rules, []lifecycleRule{{"ekdb-dumps", "ExpireDailyDumps", "v1/eduskunta_data.", 30}}) {
		t.Fatalf("unexpected lifecycle rules %+v", objects.rules)
	}
	wantDated := []string{"v1/eduskunta_data.2026-10-15.sqlite", "v1/eduskunta_data.2026-10-15.metadata.json"}
	wantLatest := []string{"v1/latest.eduskunta_data.sqlite", "v1/latest.eduskunta_data.metadata.json"}
	if !reflect.DeepEqual(res.Dated, wantDated) || !reflect.DeepEqual(res.Latest, wantLatest) {
		t.Fatalf("unexpected keys %v %v", res.Dated, res.Latest)
	}
	if objects.types["ekdb-dumps/"+wantDated[0]] != ContentTypeSQLite {
		t.Fatal("wrong content type for the database")
	}

	var md Metadata
	if err := json.Unmarshal(objects.objects["ekdb-dumps/v1/latest.eduskunta_data.metadata.json"], &md); err != nil {
		t.Fatal(err)
	}
	if md.Tables["Example"].RowCount != 42 {
		t.Fatalf("unexpected uploaded metadata %+v", md)
	}
	if _, err := os.Stat(filepath.Join(dir, "eduskunta_data.metadata.json")); err != nil {
		t.Fatal("metadata file was not written next to the database")
	}
}

func TestRunIsRepeatable(t *testing.T) {
	p := seedDB(t, t.TempDir())
	objects := newMemObjects()
	a := testArchiver(p, objects, false)
	for i := 0; i < 2; i++ {
		if _, err := a.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if len(objects.objects) != 4 {
		t.Fatalf("expected re-run to overwrite the same 4 objects, got %d", len(objects.objects))
	}
}

func TestRunAbortsOnUploadFailure(t *testing.T) {
	p := seedDB(t, t.TempDir())
	objects := newMemObjects()
	objects.failUpload = "v1/eduskunta_data.2026-10-15.metadata.json"

	if _, err := testArchiver(p, objects, false).Run(context.Background()); err == nil {
		t.Fatal("expected upload failure to abort the run")
	}
	if len(objects.copies) != 0 {
		t.Fatalf("no latest copies should be made after a failed upload, got %v", objects.copies)
	}
}

func TestRunMissingDatabase(t *testing.T) {
	objects := newMemObjects()
	if _, err := testArchiver(filepath.Join(t.TempDir(), "missing.sqlite"), objects, false).Run(context.Background()); err == nil {
		t.Fatal("expected missing database to fail")
	}
}

func TestRunDoesNotWriteToDatabase(t *testing.T) {
	p := seedDB(t, t.TempDir())
	before, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := testArchiver(p, newMemObjects(), true).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	after, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("archival modified the database file")
	}
}

func TestRunRejectsUnmigratedDatabase(t *testing.T) {
	p := filepath.Join(t.TempDir(), "eduskunta_data.sqlite")
	db, err := sql.Open("sqlite", p)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE Example (Id INTEGER PRIMARY KEY, Name TEXT)`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	objects := newMemObjects()
	_, err = testArchiver(p, objects, false).Run(context.Background())
	if !errors.Is(err, migrations.ErrMigrationsNotRun) {
		t.Fatalf("expected ErrMigrationsNotRun, got %v", err)
	}
	if len(objects.objects) != 0 {
		t.Fatalf("nothing should be uploaded, got %d objects", len(objects.objects))
	}

	db, err = sql.Open("sqlite", p)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE name IN ('metadata', ?)`, migrations.TableName).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatal("archival created tables in the database")
	}
}

func TestRunWithParquetExport(t *testing.T) {
	p := seedDB(t, t.TempDir())
	objects := newMemObjects()

	res, err := testArchiver(p, objects, true).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{
		"v1/eduskunta_data.2026-10-15.Example.parquet",
		"v1/latest.eduskunta_data.Other.parquet",
		"v1/latest.eduskunta_data.metadata.parquet",
	} {
		if _, ok := objects.objects["ekdb-dumps/"+key]; !ok {
			t.Fatalf("missing %s", key)
		}
	}
	if len(res.Dated) != 5 {
		t.Fatalf("expected 5 dated objects, got %v", res.Dated)
	}
}
