package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		" error ": slog.LevelError,
		"info":    slog.LevelInfo,
		"loud":    slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), input)
	}
}

func TestNewJSONFiltersByLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json"}, &buf)

	log.Info("hidden")
	log.Warn("camera lost", "component", "gesture")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "camera lost", record["msg"])
	assert.Equal(t, "gesture", record["component"])
	assert.Equal(t, "inclutalk", record["app"])
}

func TestNewTextByDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(Config{}, &buf).Info("ready")
	assert.Contains(t, buf.String(), "msg=ready")
	assert.Contains(t, buf.String(), "app=inclutalk")
}
