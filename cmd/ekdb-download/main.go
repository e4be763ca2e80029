package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danthegoodman1/ekdb/config"
	"github.com/danthegoodman1/ekdb/ekapi"
	"github.com/danthegoodman1/ekdb/gologger"
	"github.com/danthegoodman1/ekdb/store"
	"github.com/danthegoodman1/ekdb/tablesync"
)

var logger = gologger.NewLogger()

// usage: ekdb-download [db file]
func main() {
	var dbFile string
	if len(os.Args) > 1 {
		dbFile = os.Args[1]
	}

	cfg, err := config.SyncFromEnv(dbFile)
	if err != nil {
		logger.Error().Err(err).Msg("error loading config")
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBFile)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.DBFile).Msg("error opening database")
		os.Exit(1)
	}
	defer st.Close()

	client, err := ekapi.NewClient(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("error creating api client")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("path", cfg.DBFile).Int("tables", len(cfg.Tables())).Msg("starting download")
	stats, err := tablesync.New(cfg, client, st).SyncAll(ctx)
	for _, s := range stats {
		logger.Info().Str("table", s.Table).Bool("created", s.Created).Int64("startPK", s.StartPK).Int64("lastPK", s.LastPK).Int("pages", s.Pages).Int64("rows", s.Rows).Msg("table summary")
	}
	if err != nil {
		logger.Error().Err(err).Msg("download failed")
		st.Close()
		os.Exit(1)
	}
	logger.Info().Msg("download finished")
}
