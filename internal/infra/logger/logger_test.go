package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"chatty", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNew_JSONFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false, zerolog.WarnLevel)

	l.Info().Msg("hidden")
	l.Warn().Msg("player disconnected")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "player disconnected", entry["message"])
	assert.Equal(t, "warn", entry["level"])
}

func TestInit_FileOutput(t *testing.T) {
	previous := zlog.Logger
	previousLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zlog.Logger = previous
		zerolog.SetGlobalLevel(previousLevel)
	})

	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, Init(Config{Output: path, Level: "debug"}))

	zlog.Info().Msg("karaoke started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"karaoke started"`)
	assert.Contains(t, string(data), `"caller":"logger/logger_test.go`)
}

func TestInit_BadPath(t *testing.T) {
	err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}
