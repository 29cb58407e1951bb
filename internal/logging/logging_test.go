package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONAddsRunID(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "json")
	ctx := WithRunID(context.Background(), "abc")
	log.InfoContext(ctx, "stage done", "stage", "normalize")
	log.DebugContext(ctx, "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "stage done", rec["msg"])
	assert.Equal(t, "abc", rec["run_id"])
	assert.Equal(t, "normalize", rec["stage"])
}

func TestNewTextWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "text").With("component", "server")
	log.DebugContext(WithRunID(context.Background(), "r1"), "hello")
	out := buf.String()
	assert.Contains(t, out, "component=server")
	assert.Contains(t, out, "run_id=r1")
	assert.Contains(t, out, "level=DEBUG")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, "", RunID(context.Background()))
}
