package gologger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithRunID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithRunID(context.Background(), zerolog.New(&buf), "sync_abc")

	zerolog.Ctx(ctx).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["runID"] != "sync_abc" {
		t.Fatalf("log line missing runID: %s", buf.String())
	}
}
