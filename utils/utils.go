package utils

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/danthegoodman1/ekdb/gologger"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

var logger = gologger.NewLogger()

func GetEnvOrDefault(env, defaultVal string) string {
	e := os.Getenv(env)
	if e == "" {
		return defaultVal
	} else {
		return e
	}
}

func GetEnvOrDefaultInt(env string, defaultVal int64) int64 {
	e := os.Getenv(env)
	if e == "" {
		return defaultVal
	} else {
		intVal, err := strconv.ParseInt(e, 10, 64)
		if err != nil {
			logger.Error().Msg(fmt.Sprintf("Failed to parse string to int '%s'", env))
			os.Exit(1)
		}

		return (intVal)
	}
}

func GenKSortedID(prefix string) string {
	return prefix + ksuid.New().String()
}

func GenRandomShortID() string {
	// reduced character set that's less probable to mis-type
	// change for conflicts is still only 1:128 trillion
	return gonanoid.MustGenerate("abcdefghikmonpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ0123456789", 8)
}

func ArrayOrEmpty[T any](ref []T) []T {
	if ref == nil {
		return make([]T, 0)
	}
	return ref
}

func ContainsString(s []string, str string) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}

	return false
}

// ReliableOp runs f until it succeeds, returns a permanent error, or has been
// retried maxRetries times. With maxRetries 0 f runs exactly once.
func ReliableOp(ctx context.Context, maxRetries uint64, f func(ctx context.Context) error) error {
	logger := zerolog.Ctx(ctx)
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := f(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		if uint64(attempt) <= maxRetries {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("operation failed, retrying")
		}
		return err
	}, b)
}
