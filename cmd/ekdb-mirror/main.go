package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danthegoodman1/ekdb/archive"
	"github.com/danthegoodman1/ekdb/gologger"
	"github.com/danthegoodman1/ekdb/http_server"
	"github.com/danthegoodman1/ekdb/s3_helper"
	"github.com/danthegoodman1/ekdb/store"
	"github.com/danthegoodman1/ekdb/utils"
)

var logger = gologger.NewLogger()

// usage: ekdb-mirror [db file]
func main() {
	dbFile := utils.DB_FILE
	if len(os.Args) > 1 {
		dbFile = os.Args[1]
	}

	if err := fetchLatest(dbFile); err != nil {
		logger.Error().Err(err).Msg("error fetching latest dump")
		os.Exit(1)
	}

	st, err := store.Open(dbFile)
	if err != nil {
		logger.Error().Err(err).Str("path", dbFile).Msg("error opening database")
		os.Exit(1)
	}
	defer st.Close()

	httpServer, err := http_server.StartHTTPServer(st, utils.HTTP_PORT)
	if err != nil {
		logger.Error().Err(err).Msg("error starting HTTP server")
		os.Exit(1)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn().Msg("received shutdown signal!")

	// For AWS ALB needing some time to de-register pod
	sleepTime := utils.GetEnvOrDefaultInt("SHUTDOWN_SLEEP_SEC", 0)
	logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))

	time.Sleep(time.Second * time.Duration(sleepTime))
	logger.Info().Msg(fmt.Sprintf("slept for %ds, exiting", sleepTime))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server")
	} else {
		logger.Info().Msg("successfully shutdown HTTP server")
	}
}

// fetchLatest downloads the latest archived dump when the file is missing or MIRROR_FROM_S3=1.
func fetchLatest(dbFile string) error {
	_, err := os.Stat(dbFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error in os.Stat: %w", err)
	}
	if err == nil && !utils.MIRROR_FROM_S3 {
		return nil
	}

	sess, err := s3_helper.NewSession()
	if err != nil {
		return err
	}
	key := archive.LatestKey(utils.S3_PREFIX, utils.DATASET_NAME, "sqlite")
	logger.Info().Str("bucket", utils.S3_BUCKET_NAME).Str("key", key).Msg("downloading latest dump")

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background()), time.Minute*10)
	defer cancel()
	return s3_helper.NewS3Store(sess).Download(ctx, utils.S3_BUCKET_NAME, key, dbFile)
}
