package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/domain/user"
)

// DefaultPlaylistSizeLimit is the number of pending entries above which the
// playlist is full.
const DefaultPlaylistSizeLimit = 100

// PlaylistFullConfig represents the configuration for PlaylistFullFilter.
type PlaylistFullConfig struct {
	SizeLimit int `yaml:"size_limit" mapstructure:"size_limit" default:"100" validate:"gte=1"`
}

// PlaylistFullFilter rejects requests once the playlist holds SizeLimit
// pending entries.
type PlaylistFullFilter struct {
	config PlaylistFullConfig
}

// NewPlaylistFullFilter creates a playlist full filter with the given limit.
func NewPlaylistFullFilter(sizeLimit int) *PlaylistFullFilter {
	if sizeLimit <= 0 {
		sizeLimit = DefaultPlaylistSizeLimit
	}
	return &PlaylistFullFilter{config: PlaylistFullConfig{SizeLimit: sizeLimit}}
}

func (f *PlaylistFullFilter) Name() string {
	return "playlist_full_filter"
}

func (f *PlaylistFullFilter) Description() string {
	return "Checks if the playlist has room for another entry"
}

func (f *PlaylistFullFilter) ReturnCodes() []string {
	return []string{CodePlaylistFull}
}

func (f *PlaylistFullFilter) ValidateConfig(settings map[string]any) error {
	var config PlaylistFullConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	zlog.Info().Msgf("playlist full filter config: %+v", config)
	return nil
}

// SizeLimit returns the configured limit.
func (f *PlaylistFullFilter) SizeLimit() int {
	return f.config.SizeLimit
}

func (f *PlaylistFullFilter) AppliesTo(u user.User) bool {
	return true
}

func (f *PlaylistFullFilter) Check(ctx context.Context, req EntryRequest) Result {
	if len(req.Pending) >= f.config.SizeLimit {
		return Reject(CodePlaylistFull)
	}
	return Accept()
}
