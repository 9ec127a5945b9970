package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown", "book_id", "b1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "shown", record["msg"])
	assert.Equal(t, "b1", record["book_id"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_RejectsUnknownSettings(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestMultiHandler_FansOut(t *testing.T) {
	var debug, errs bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	l := slog.New(h).With("component", "test")

	l.Debug("debug line")
	l.Error("error line")

	assert.Contains(t, debug.String(), "debug line")
	assert.Contains(t, debug.String(), "error line")
	assert.NotContains(t, errs.String(), "debug line")
	assert.Contains(t, errs.String(), "component=test")
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}
