package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		level slog.Level
		trace bool
	}{
		{"trace", slog.LevelDebug, true},
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"", slog.LevelInfo, false},
		{"nonsense", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lvl, trace := level(tt.name)
			assert.Equal(t, tt.level, lvl)
			assert.Equal(t, tt.trace, trace)
		})
	}
}

func TestSetupHandlerText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(SetupHandlerText("warn", &buf))
	logger.Info("Module loaded")
	logger.Warn("Module failure reported", "node", "left")

	out := buf.String()
	assert.NotContains(t, out, "Module loaded")
	assert.Contains(t, out, "Module failure reported")
	assert.Contains(t, out, "left")

	h := SetupHandlerText("debug", &buf)
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestSetupHandlerJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(SetupHandlerJSON("info", &buf))
	logger.Debug("hidden")
	logger.Info("Playback snapshot", "node", "right", "state", "visible")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Playback snapshot", line["msg"])
	assert.Equal(t, "right", line["node"])
	assert.Equal(t, "INFO", line["level"])
	assert.NotContains(t, line, "source")

	buf.Reset()
	slog.New(SetupHandlerJSON("trace", &buf)).Debug("with caller")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Contains(t, line, "source")
}

func TestSetup(t *testing.T) {
	t.Parallel()

	t.Run("json to file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "logs", "wall.log")
		h, closer, err := Setup("json", "info", path)
		require.NoError(t, err)
		slog.New(h).Info("Player started", "node", "left")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"Player started"`)
	})

	t.Run("text to stderr", func(t *testing.T) {
		t.Parallel()
		h, closer, err := Setup("", "info", "")
		require.NoError(t, err)
		require.NotNil(t, h)
		require.NoError(t, closer.Close())
	})

	t.Run("bad format", func(t *testing.T) {
		t.Parallel()
		_, _, err := Setup("xml", "info", "stdout")
		require.Error(t, err)
	})

	t.Run("bad output", func(t *testing.T) {
		t.Parallel()
		_, _, err := Setup("text", "info", "s3://bucket/log")
		require.Error(t, err)
	})
}
