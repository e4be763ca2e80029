package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danthegoodman1/ekdb/archive"
	"github.com/danthegoodman1/ekdb/config"
	"github.com/danthegoodman1/ekdb/gologger"
	"github.com/danthegoodman1/ekdb/s3_helper"
)

var logger = gologger.NewLogger()

func main() {
	cfg, err := config.ArchiveFromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("error loading config")
		os.Exit(1)
	}

	sess, err := s3_helper.NewSession()
	if err != nil {
		logger.Error().Err(err).Msg("error creating s3 session")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := archive.NewArchiver(cfg, s3_helper.NewS3Store(sess)).Run(ctx)
	if err != nil {
		logger.Error().Err(err).Str("bucket", cfg.Bucket).Msg("upload failed")
		stop()
		os.Exit(1)
	}
	logger.Info().Str("bucket", cfg.Bucket).Str("date", res.Date).Strs("latest", res.Latest).Float64("sizeMB", res.Metadata.SizeMB).Msg("upload finished")
}
