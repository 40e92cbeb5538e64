package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zberg/go-vclient/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "1.2.3", &buf)

	logger.Debug("hidden")
	logger.Info("polled", "items", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "polled", entry["msg"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, 3.0, entry["items"])
}

func TestNew_TextDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn"}, "", &buf)

	logger.Info("hidden")
	logger.Warn("item failed", "item", "getTempA")

	assert.Contains(t, buf.String(), "msg=\"item failed\"")
	assert.Contains(t, buf.String(), "item=getTempA")
	assert.NotContains(t, buf.String(), "hidden")
	assert.NotContains(t, buf.String(), "version=")
}
