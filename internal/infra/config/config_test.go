package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
auth:
  secret: "0123456789abcdef0123"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "stdout", cfg.Log.Output)
	assert.Equal(t, 100, cfg.Playlist.SizeLimit)
	assert.Equal(t, "karabox:", cfg.Redis.Prefix)
	assert.Equal(t, 5*time.Second, cfg.LockTTL())
	assert.Equal(t, 3*time.Second, cfg.LockWait())
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout())
	assert.Equal(t, 30*time.Second, cfg.PingInterval())
	assert.Equal(t, 64, cfg.WebSocket.SendBuffer)
	assert.False(t, cfg.Database.SkipMigrations)
	assert.Equal(t, "The playlist is full", cfg.Messages.PlaylistFull)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "missing secret",
			yaml:   `server: {addr: ":9000"}`,
			errMsg: "Secret",
		},
		{
			name:   "short secret",
			yaml:   `auth: {secret: "short"}`,
			errMsg: "Secret",
		},
		{
			name: "size limit below one",
			yaml: `
auth: {secret: "0123456789abcdef0123"}
playlist: {size_limit: -3}
`,
			errMsg: "SizeLimit",
		},
		{
			name: "unknown log level",
			yaml: `
auth: {secret: "0123456789abcdef0123"}
log: {level: verbose}
`,
			errMsg: "Level",
		},
		{
			name:   "invalid yaml",
			yaml:   "auth: [",
			errMsg: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv("AUTH_SECRET", "from-env-0123456789")
	t.Setenv("DATABASE_URL", "postgres://localhost/karabox")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")

	cfg, err := Parse([]byte(`auth: {secret: "from-file-0123456789"}`))
	require.NoError(t, err)

	assert.Equal(t, "from-env-0123456789", cfg.Auth.Secret)
	assert.Equal(t, "postgres://localhost/karabox", cfg.Database.DSN)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.URL)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  secret: "0123456789abcdef0123"
playlist:
  size_limit: 20
filters:
  duration_limit_filter:
    enabled: true
    settings:
      max_minutes: 8
  user_pending_filter:
    enabled: false
messages:
  playlist_full: "No more room"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Playlist.SizeLimit)
	assert.True(t, cfg.IsFilterEnabled("duration_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("user_pending_filter"))
	assert.False(t, cfg.IsFilterEnabled("missing_filter"))
	assert.Equal(t, map[string]any{"max_minutes": 8}, cfg.GetFilterSettings("duration_limit_filter"))
	assert.Nil(t, cfg.GetFilterSettings("missing_filter"))
	assert.Equal(t, "No more room", cfg.GetMessage("playlist_full"))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetMessage(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	codes := []string{
		"not_ongoing", "add_disabled", "playlist_full", "past_stop_time", "song_disabled",
		"duration_limit_exceeded", "user_pending", "duplicate_song", "forbidden", "not_found",
		"player_idle", "player_connected", "already_playing", "incoherent_event",
		"unknown_event", "unknown_command", "invalid_request", "unauthenticated",
	}
	seen := map[string]string{}
	for _, code := range codes {
		msg := cfg.GetMessage(code)
		assert.NotEmpty(t, msg, code)
		assert.NotEqual(t, cfg.Messages.DefaultError, msg, code)
		if other, dup := seen[msg]; dup {
			t.Errorf("codes %s and %s share message %q", code, other, msg)
		}
		seen[msg] = code
	}
	assert.Equal(t, cfg.Messages.DefaultError, cfg.GetMessage("whatever"))
}
