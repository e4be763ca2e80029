package tablesync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danthegoodman1/ekdb/config"
	"github.com/danthegoodman1/ekdb/ekapi"
	"github.com/danthegoodman1/ekdb/gologger"
	"github.com/danthegoodman1/ekdb/store"
	"github.com/danthegoodman1/ekdb/utils"
	"github.com/rs/zerolog"
)

var (
	ErrSchemaDrift       = errors.New("column list changed")
	ErrMissingPrimaryKey = errors.New("primary key column missing from page")
	ErrBadColumnName     = errors.New("bad column name")
	ErrNoProgress        = errors.New("page did not advance the primary key")

	logger = gologger.NewLogger()
)

type (
	// Source serves pages of a remote table. *ekapi.Client is the production Source.
	Source interface {
		FetchPage(ctx context.Context, table config.Table, pkStart int64, perPage int) (*ekapi.Page, error)
	}

	Syncer struct {
		cfg   config.Sync
		src   Source
		store *store.Store
	}

	TableStats struct {
		Table string
		// Created is true when the local table did not exist before this run
		Created bool
		StartPK int64
		LastPK  int64
		Pages   int
		Rows    int64
	}
)

func New(cfg config.Sync, src Source, st *store.Store) *Syncer {
	return &Syncer{cfg: cfg, src: src, store: st}
}

// SanitizeColumnName drops every character outside A-Z and a-z.
func SanitizeColumnName(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			return r
		}
		return -1
	}, name)
}

// SanitizeColumns sanitizes every name, failing if a name becomes empty or two names collide.
func SanitizeColumns(names []string) ([]string, error) {
	out := make([]string, len(names))
	seen := make(map[string]string, len(names))
	for i, n := range names {
		s := SanitizeColumnName(n)
		if s == "" {
			return nil, fmt.Errorf("%w: %q has no letters", ErrBadColumnName, n)
		}
		if prev, ok := seen[s]; ok {
			return nil, fmt.Errorf("%w: %q and %q both become %q", ErrBadColumnName, prev, n, s)
		}
		seen[s] = n
		out[i] = s
	}
	return out, nil
}

// SyncAll syncs every configured table in order and stops at the first failure.
// Tables synced before the failure keep their committed rows.
func (s *Syncer) SyncAll(ctx context.Context) ([]TableStats, error) {
	ctx = gologger.WithRunID(ctx, logger, utils.GenKSortedID("sync_"))
	logger := zerolog.Ctx(ctx)

	start := time.Now()
	var all []TableStats
	for _, t := range s.cfg.Tables() {
		stats, err := s.SyncTable(ctx, t)
		if err != nil {
			return all, fmt.Errorf("error syncing table %s: %w", t.Name, err)
		}
		all = append(all, stats)
	}

	var rows int64
	for _, st := range all {
		rows += st.Rows
	}
	logger.Info().Int("tables", len(all)).Int64("rows", rows).Str("durationHuman", time.Since(start).String()).Msg("sync finished")
	return all, nil
}

// SyncTable appends every remote row of t past the local max primary key.
func (s *Syncer) SyncTable(ctx context.Context, t config.Table) (TableStats, error) {
	logger := zerolog.Ctx(ctx).With().Str("table", t.Name).Logger()
	stats := TableStats{Table: t.Name, StartPK: 1}

	logger.Info().Msg("starting")

	var localCols []string
	maxPK, ok, err := s.store.MaxPK(ctx, t.Name, t.PrimaryKey)
	switch {
	case errors.Is(err, store.ErrNoSuchTable):
		logger.Info().Msg("table does not exist in sqlite, will be created")
		stats.Created = true
	case err != nil:
		return stats, fmt.Errorf("error in MaxPK: %w", err)
	default:
		if ok {
			stats.StartPK = maxPK + 1
		}
		if localCols, err = s.store.Columns(ctx, t.Name); err != nil {
			return stats, fmt.Errorf("error in Columns: %w", err)
		}
	}

	create := stats.Created
	var runCols []string
	pkStart := stats.StartPK
	for {
		logger.Info().Int64("pkStartValue", pkStart).Msg("fetching")
		page, err := s.src.FetchPage(ctx, t, pkStart, s.cfg.PerPage)
		if err != nil {
			return stats, fmt.Errorf("error in FetchPage(pkStartValue=%d): %w", pkStart, err)
		}

		if len(page.ColumnNames) == 0 && len(page.RowData) == 0 && !page.HasMore {
			logger.Info().Int("pages", stats.Pages).Int64("rows", stats.Rows).Msg("empty page, done")
			return stats, nil
		}

		cols, err := SanitizeColumns(page.ColumnNames)
		if err != nil {
			return stats, err
		}
		if runCols == nil {
			if err := checkFirstPage(t, cols, localCols, create); err != nil {
				return stats, err
			}
			runCols = cols
		} else if !equalColumns(runCols, cols) {
			return stats, fmt.Errorf("%w: pkStartValue=%d had %v, earlier pages had %v", ErrSchemaDrift, pkStart, cols, runCols)
		}

		var schema *store.TableSchema
		if create {
			logger.Info().Msg("creating table")
			ts := store.InferSchema(t.Name, t.PrimaryKey, cols, page.RowData)
			schema = &ts
		}
		if err := s.store.WritePage(ctx, schema, t.Name, cols, page.RowData); err != nil {
			if errors.Is(err, store.ErrTypeMismatch) {
				return stats, fmt.Errorf("%w: pkStartValue=%d: %w", ErrSchemaDrift, pkStart, err)
			}
			return stats, fmt.Errorf("error in WritePage: %w", err)
		}
		create = false
		stats.Pages++
		stats.Rows += int64(len(page.RowData))
		if len(page.RowData) > 0 {
			stats.LastPK = page.PKLastValue
		}

		if !page.HasMore {
			logger.Info().Int("pages", stats.Pages).Int64("rows", stats.Rows).Msg("hasMore = false, done")
			return stats, nil
		}

		next := page.PKLastValue + 1
		if next <= pkStart {
			return stats, fmt.Errorf("%w: pkStartValue=%d returned pkLastValue=%d", ErrNoProgress, pkStart, page.PKLastValue)
		}
		pkStart = next
	}
}

// checkFirstPage validates the first page of a run against the primary key and,
// for an existing table, against its local columns.
func checkFirstPage(t config.Table, cols, localCols []string, create bool) error {
	if !utils.ContainsString(cols, t.PrimaryKey) {
		return fmt.Errorf("%w: %s not in %v", ErrMissingPrimaryKey, t.PrimaryKey, cols)
	}
	if create {
		return nil
	}
	for _, c := range cols {
		if !utils.ContainsString(localCols, c) {
			return fmt.Errorf("%w: remote column %s is not in local table %s %v", ErrSchemaDrift, c, t.Name, localCols)
		}
	}
	return nil
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
