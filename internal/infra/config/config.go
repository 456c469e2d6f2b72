// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Log       LogConfig               `yaml:"log"`
	Database  DatabaseConfig          `yaml:"database"`
	Redis     RedisConfig             `yaml:"redis"`
	Auth      AuthConfig              `yaml:"auth"`
	Playlist  PlaylistConfig          `yaml:"playlist"`
	Library   LibraryConfig           `yaml:"library"`
	WebSocket WebSocketConfig         `yaml:"websocket"`
	Filters   map[string]FilterConfig `yaml:"filters"`
	Messages  MessagesConfig          `yaml:"messages"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr              string      `yaml:"addr" default:":8080"`
	ShutdownTimeoutMs int         `yaml:"shutdown_timeout_ms" default:"10000" validate:"gte=0"`
	Hooks             HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// LogConfig represents logging configuration. Command-line flags override it.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stdout"`
}

// DatabaseConfig represents the durable store configuration.
// An empty DSN keeps the playlist in memory.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn"`
	SkipMigrations bool   `yaml:"skip_migrations"`
}

// RedisConfig represents the ephemeral store configuration.
// An empty URL keeps the player state in memory.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Prefix     string `yaml:"prefix" default:"karabox:"`
	LockTTLMs  int    `yaml:"lock_ttl_ms" default:"5000" validate:"gte=100"`
	LockWaitMs int    `yaml:"lock_wait_ms" default:"3000" validate:"gte=0"`
}

// AuthConfig represents token verification configuration.
type AuthConfig struct {
	Secret        string `yaml:"secret" validate:"required,min=16"`
	Issuer        string `yaml:"issuer" default:"karabox"`
	TokenTTLHours int    `yaml:"token_ttl_hours" default:"24" validate:"gte=1"`
}

// PlaylistConfig represents playlist configuration.
type PlaylistConfig struct {
	SizeLimit int `yaml:"size_limit" default:"100" validate:"gte=1"`
}

// LibraryConfig represents the song library configuration.
// Without a database, songs are read from File.
type LibraryConfig struct {
	File string `yaml:"file"`
}

// WebSocketConfig represents realtime connection configuration.
type WebSocketConfig struct {
	WriteTimeoutMs int      `yaml:"write_timeout_ms" default:"10000" validate:"gte=100"`
	PingIntervalMs int      `yaml:"ping_interval_ms" default:"30000" validate:"gte=1000"`
	SendBuffer     int      `yaml:"send_buffer" default:"64" validate:"gte=1"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	DefaultError          string `yaml:"default_error" default:"The request could not be processed"`
	NotOngoing            string `yaml:"not_ongoing" default:"The karaoke is not ongoing"`
	AddDisabled           string `yaml:"add_disabled" default:"Adding songs to the playlist is disabled"`
	PlaylistFull          string `yaml:"playlist_full" default:"The playlist is full"`
	PastStopTime          string `yaml:"past_stop_time" default:"This song would end after the karaoke stops"`
	SongDisabled          string `yaml:"song_disabled" default:"This song is disabled"`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"This song is too short or too long"`
	UserPending           string `yaml:"user_pending" default:"You already have songs waiting to be played"`
	DuplicateSong         string `yaml:"duplicate_song" default:"This song is already in the playlist"`
	Forbidden             string `yaml:"forbidden" default:"You are not allowed to do this"`
	NotFound              string `yaml:"not_found" default:"Not found"`
	PlayerIdle            string `yaml:"player_idle" default:"The player is idle"`
	PlayerConnected       string `yaml:"player_connected" default:"A player is already connected"`
	AlreadyPlaying        string `yaml:"already_playing" default:"Another entry is already playing"`
	IncoherentEvent       string `yaml:"incoherent_event" default:"The event does not match the player state"`
	UnknownEvent          string `yaml:"unknown_event" default:"Unknown player event"`
	UnknownCommand        string `yaml:"unknown_command" default:"Unknown player command"`
	InvalidRequest        string `yaml:"invalid_request" default:"Invalid request"`
	Unauthenticated       string `yaml:"unauthenticated" default:"Authentication required"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("KARABOX_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "not_ongoing":
		return c.Messages.NotOngoing
	case "add_disabled":
		return c.Messages.AddDisabled
	case "playlist_full":
		return c.Messages.PlaylistFull
	case "past_stop_time":
		return c.Messages.PastStopTime
	case "song_disabled":
		return c.Messages.SongDisabled
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "user_pending":
		return c.Messages.UserPending
	case "duplicate_song":
		return c.Messages.DuplicateSong
	case "forbidden":
		return c.Messages.Forbidden
	case "not_found":
		return c.Messages.NotFound
	case "player_idle":
		return c.Messages.PlayerIdle
	case "player_connected":
		return c.Messages.PlayerConnected
	case "already_playing":
		return c.Messages.AlreadyPlaying
	case "incoherent_event":
		return c.Messages.IncoherentEvent
	case "unknown_event":
		return c.Messages.UnknownEvent
	case "unknown_command":
		return c.Messages.UnknownCommand
	case "invalid_request":
		return c.Messages.InvalidRequest
	case "unauthenticated":
		return c.Messages.Unauthenticated
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}

// ShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutMs) * time.Millisecond
}

// LockTTL returns how long a named lock is held before it expires.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Redis.LockTTLMs) * time.Millisecond
}

// LockWait returns how long to wait for a named lock.
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Redis.LockWaitMs) * time.Millisecond
}

// TokenTTL returns the lifetime of issued tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// WriteTimeout returns the websocket write deadline.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WebSocket.WriteTimeoutMs) * time.Millisecond
}

// PingInterval returns the websocket ping interval.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.WebSocket.PingIntervalMs) * time.Millisecond
}
