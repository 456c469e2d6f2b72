package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/domain/user"
)

// DurationLimitConfig represents the configuration for DurationLimitFilter.
type DurationLimitConfig struct {
	MinSeconds float64 `yaml:"min_seconds" mapstructure:"min_seconds" validate:"gte=0"`
	MaxMinutes float64 `yaml:"max_minutes" mapstructure:"max_minutes" default:"10" validate:"gte=0"`
}

// DurationLimitFilter checks if the song duration is within allowed limits.
type DurationLimitFilter struct {
	config *DurationLimitConfig
}

// NewDurationLimitFilter creates a new duration limit filter.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit_filter"
}

func (f *DurationLimitFilter) Description() string {
	return "Checks if song duration is within allowed limits"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{CodeDurationLimitExceeded}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var config DurationLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}

	if config.MaxMinutes > 0 && config.MinSeconds > config.MaxMinutes*60 {
		return errors.New("min_seconds cannot be greater than max_minutes")
	}
	f.config = &config
	zlog.Info().Msgf("duration limit filter config: %+v", config)
	return nil
}

func (f *DurationLimitFilter) AppliesTo(u user.User) bool {
	// Apply to regular playlist users only
	return !u.IsPlaylistManager()
}

func (f *DurationLimitFilter) Check(ctx context.Context, req EntryRequest) Result {
	// If config is not set, accept all songs
	if f.config == nil {
		return Accept()
	}

	if req.Song.Duration.Seconds() < f.config.MinSeconds {
		return Reject(CodeDurationLimitExceeded)
	}

	if f.config.MaxMinutes > 0 && req.Song.Duration.Minutes() > f.config.MaxMinutes {
		return Reject(CodeDurationLimitExceeded)
	}

	return Accept()
}

func init() {
	Register("duration_limit_filter", func() Filter {
		return &DurationLimitFilter{}
	})
}
