package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danthegoodman1/ekdb/config"
	"github.com/danthegoodman1/ekdb/gologger"
	"github.com/danthegoodman1/ekdb/migrations"
	"github.com/danthegoodman1/ekdb/parquet_accumulator"
	"github.com/danthegoodman1/ekdb/store"
	"github.com/danthegoodman1/ekdb/utils"
	"github.com/rs/zerolog"
)

const (
	ExpireRuleID = "ExpireDailyDumps"

	ContentTypeSQLite  = "application/vnd.sqlite3"
	ContentTypeJSON    = "application/json"
	ContentTypeParquet = "application/vnd.apache.parquet"
)

var logger = gologger.NewLogger()

type (
	// ObjectStore is the bucket the dumps are archived to. s3_helper.S3Store implements it.
	ObjectStore interface {
		// PutExpirationRule replaces the bucket lifecycle with a single rule
		// expiring objects under prefix after days.
		PutExpirationRule(ctx context.Context, bucket, ruleID, prefix string, days int64) error
		// Upload puts the file at path under key.
		Upload(ctx context.Context, bucket, key, path, contentType string) error
		// Copy copies srcKey to dstKey inside bucket.
		Copy(ctx context.Context, bucket, srcKey, dstKey string) error
	}

	Archiver struct {
		cfg     config.Archive
		objects ObjectStore
		now     func() time.Time
	}

	// artifact is a local file uploaded under a dated key and copied to a latest key
	artifact struct {
		path        string
		ext         string
		contentType string
	}

	Result struct {
		Date     string
		Metadata *Metadata
		// Dated and Latest are the keys written, in upload order
		Dated  []string
		Latest []string
	}
)

func NewArchiver(cfg config.Archive, objects ObjectStore) *Archiver {
	return &Archiver{cfg: cfg, objects: objects, now: time.Now}
}

// DatedPrefix is the key prefix of every dated dump, which the expiration rule targets.
func DatedPrefix(prefix, dataset string) string {
	return fmt.Sprintf("%s/%s.", prefix, dataset)
}

func DatedKey(prefix, dataset, date, ext string) string {
	return fmt.Sprintf("%s/%s.%s.%s", prefix, dataset, date, ext)
}

func LatestKey(prefix, dataset, ext string) string {
	return fmt.Sprintf("%s/latest.%s.%s", prefix, dataset, ext)
}

// Run archives the database: lifecycle rule, metadata, dated uploads, latest copies.
// It stops at the first failure and leaves already written objects in place.
func (a *Archiver) Run(ctx context.Context) (*Result, error) {
	ctx = gologger.WithRunID(ctx, logger, utils.GenKSortedID("archive_"))
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	logger.Info().Msg("starting")

	datedPrefix := DatedPrefix(a.cfg.Prefix, a.cfg.Dataset)
	err := a.reliable(ctx, func(ctx context.Context) error {
		return a.objects.PutExpirationRule(ctx, a.cfg.Bucket, ExpireRuleID, datedPrefix, a.cfg.RetentionDays)
	})
	if err != nil {
		return nil, fmt.Errorf("error in PutExpirationRule: %w", err)
	}
	logger.Info().Str("prefix", datedPrefix).Int64("days", a.cfg.RetentionDays).Msg("patched lifecycle")

	artifacts, md, cleanup, err := a.prepare(ctx)
	defer cleanup()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Date:     a.now().UTC().Format("2006-01-02"),
		Metadata: md,
	}

	logger.Info().Msg("uploading files")
	for _, art := range artifacts {
		key := DatedKey(a.cfg.Prefix, a.cfg.Dataset, res.Date, art.ext)
		err := a.reliable(ctx, func(ctx context.Context) error {
			return a.objects.Upload(ctx, a.cfg.Bucket, key, art.path, art.contentType)
		})
		if err != nil {
			return nil, fmt.Errorf("error uploading %s: %w", key, err)
		}
		logger.Debug().Str("key", key).Msg("uploaded")
		res.Dated = append(res.Dated, key)
	}

	logger.Info().Msg("copying to 'latest' path")
	for i, art := range artifacts {
		key := LatestKey(a.cfg.Prefix, a.cfg.Dataset, art.ext)
		err := a.reliable(ctx, func(ctx context.Context) error {
			return a.objects.Copy(ctx, a.cfg.Bucket, res.Dated[i], key)
		})
		if err != nil {
			return nil, fmt.Errorf("error copying %s to %s: %w", res.Dated[i], key, err)
		}
		res.Latest = append(res.Latest, key)
	}

	logger.Info().Int("objects", len(res.Dated)).Str("durationHuman", time.Since(start).String()).Msg("done")
	return res, nil
}

// prepare writes the metadata document (and parquet exports when enabled) and
// returns every file to upload. cleanup is always safe to call.
func (a *Archiver) prepare(ctx context.Context) ([]artifact, *Metadata, func(), error) {
	logger := zerolog.Ctx(ctx)
	cleanup := func() {}

	if _, err := os.Stat(a.cfg.DBFile); err != nil {
		return nil, nil, cleanup, fmt.Errorf("error in os.Stat: %w", err)
	}
	st, err := store.OpenReadOnly(a.cfg.DBFile)
	if err != nil {
		return nil, nil, cleanup, fmt.Errorf("error in store.OpenReadOnly: %w", err)
	}
	defer st.Close()
	if err := migrations.CheckMigrations(st.DB()); err != nil {
		return nil, nil, cleanup, fmt.Errorf("error in CheckMigrations for %s: %w", a.cfg.DBFile, err)
	}

	md, err := BuildMetadata(ctx, st, a.cfg.DBFile)
	if err != nil {
		return nil, nil, cleanup, err
	}
	mdPath := filepath.Join(filepath.Dir(a.cfg.DBFile), a.cfg.Dataset+".metadata.json")
	if err := WriteMetadata(md, mdPath); err != nil {
		return nil, nil, cleanup, err
	}
	logger.Info().Str("path", mdPath).Msg("wrote metadata")

	artifacts := []artifact{
		{path: a.cfg.DBFile, ext: "sqlite", contentType: ContentTypeSQLite},
		{path: mdPath, ext: "metadata.json", contentType: ContentTypeJSON},
	}
	if !a.cfg.ExportParquet {
		return artifacts, md, cleanup, nil
	}

	dir := filepath.Join(os.TempDir(), "ekdb-export-"+utils.GenRandomShortID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, cleanup, fmt.Errorf("error in os.MkdirAll: %w", err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	tables, err := st.ListTables(ctx)
	if err != nil {
		return nil, nil, cleanup, fmt.Errorf("error in ListTables: %w", err)
	}
	for _, table := range tables {
		p := filepath.Join(dir, table+".parquet")
		n, err := parquet_accumulator.ExportTable(ctx, st, table, p)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("error exporting %s to parquet: %w", table, err)
		}
		logger.Debug().Str("table", table).Int64("rows", n).Msg("exported parquet")
		artifacts = append(artifacts, artifact{path: p, ext: table + ".parquet", contentType: ContentTypeParquet})
	}
	return artifacts, md, cleanup, nil
}

func (a *Archiver) reliable(ctx context.Context, f func(ctx context.Context) error) error {
	return utils.ReliableOp(ctx, a.cfg.MaxRetries, f)
}
