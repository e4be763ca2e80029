package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/danthegoodman1/ekdb/utils"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxPerPage is the largest page the upstream API will serve.
const MaxPerPage = 100

var (
	ErrDuplicateTable = errors.New("duplicate table")

	validate = validator.New()
)

type (
	// Table is a remote table and the column the API paginates it by.
	Table struct {
		Name       string `yaml:"name" validate:"required,alphanum"`
		PrimaryKey string `yaml:"primaryKey" validate:"required,alpha"`
	}

	// Sync holds everything the table sync needs. Build one with NewSync, it is
	// never mutated afterwards.
	Sync struct {
		tables []Table

		DBFile      string `validate:"required"`
		BaseURL     string `validate:"required,url"`
		PerPage     int    `validate:"min=1,max=100"`
		HTTPTimeout time.Duration
		MaxRetries  uint64
		TLSInsecure bool
	}

	// Archive holds the settings of the archival run.
	Archive struct {
		DBFile        string `validate:"required"`
		Bucket        string `validate:"required"`
		Prefix        string `validate:"required"`
		Dataset       string `validate:"required"`
		RetentionDays int64  `validate:"min=1"`
		ExportParquet bool
		MaxRetries    uint64
	}

	tableFile struct {
		Tables []Table `yaml:"tables"`
	}
)

// NewSync validates tables and settings and returns the resulting config.
// Table names must be unique.
func NewSync(tables []Table, s Sync) (Sync, error) {
	if err := validateTables(tables); err != nil {
		return Sync{}, err
	}
	if err := validate.Struct(s); err != nil {
		return Sync{}, fmt.Errorf("invalid sync config: %w", err)
	}
	s.tables = make([]Table, len(tables))
	copy(s.tables, tables)
	return s, nil
}

// Tables returns a copy of the configured tables in sync order.
func (s Sync) Tables() []Table {
	out := make([]Table, len(s.tables))
	copy(out, s.tables)
	return out
}

func validateTables(tables []Table) error {
	if len(tables) == 0 {
		return errors.New("no tables configured")
	}
	seen := make(map[string]bool, len(tables))
	for _, t := range tables {
		if err := validate.Struct(t); err != nil {
			return fmt.Errorf("invalid table %q: %w", t.Name, err)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateTable, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// ParseTables reads a YAML table list.
func ParseTables(b []byte) ([]Table, error) {
	var tf tableFile
	if err := yaml.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("error in yaml.Unmarshal: %w", err)
	}
	if err := validateTables(tf.Tables); err != nil {
		return nil, err
	}
	return tf.Tables, nil
}

// LoadTables returns the tables from path, or the built-in set when path is empty.
func LoadTables(path string) ([]Table, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error in os.ReadFile: %w", err)
	}
	return ParseTables(b)
}

// SyncFromEnv builds the sync config from the environment. dbFile overrides DB_FILE when set.
func SyncFromEnv(dbFile string) (Sync, error) {
	tables, err := LoadTables(utils.TABLES_FILE)
	if err != nil {
		return Sync{}, fmt.Errorf("error loading tables: %w", err)
	}
	if dbFile == "" {
		dbFile = utils.DB_FILE
	}
	return NewSync(tables, Sync{
		DBFile:      dbFile,
		BaseURL:     utils.API_BASE_URL,
		PerPage:     int(utils.PER_PAGE),
		HTTPTimeout: time.Duration(utils.HTTP_TIMEOUT_SEC) * time.Second,
		MaxRetries:  uint64(utils.HTTP_MAX_RETRIES),
		TLSInsecure: utils.TLS_INSECURE,
	})
}

// ArchiveFromEnv builds the archive config from the environment.
func ArchiveFromEnv() (Archive, error) {
	a := Archive{
		DBFile:        utils.DB_FILE,
		Bucket:        utils.S3_BUCKET_NAME,
		Prefix:        utils.S3_PREFIX,
		Dataset:       utils.DATASET_NAME,
		RetentionDays: utils.RETENTION_DAYS,
		ExportParquet: utils.EXPORT_PARQUET,
		MaxRetries:    uint64(utils.HTTP_MAX_RETRIES),
	}
	if err := validate.Struct(a); err != nil {
		return Archive{}, fmt.Errorf("invalid archive config: %w", err)
	}
	return a, nil
}
