package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/domain/user"
)

// UserPendingConfig represents the configuration for UserPendingFilter.
type UserPendingConfig struct {
	MaxPending int `yaml:"max_pending" mapstructure:"max_pending" default:"1" validate:"gte=1"`
}

// UserPendingFilter limits how many entries a user may have waiting.
type UserPendingFilter struct {
	config UserPendingConfig
}

func (f *UserPendingFilter) Name() string {
	return "user_pending_filter"
}

func (f *UserPendingFilter) Description() string {
	return "Checks if the user already has too many songs waiting to be played"
}

func (f *UserPendingFilter) ReturnCodes() []string {
	return []string{CodeUserPending}
}

func (f *UserPendingFilter) ValidateConfig(settings map[string]any) error {
	var config UserPendingConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	zlog.Info().Msgf("user pending filter config: %+v", config)
	return nil
}

func (f *UserPendingFilter) AppliesTo(u user.User) bool {
	// Managers bypass this check
	return !u.IsPlaylistManager()
}

func (f *UserPendingFilter) Check(ctx context.Context, req EntryRequest) Result {
	limit := f.config.MaxPending
	if limit <= 0 {
		limit = 1
	}

	pending := 0
	for _, e := range req.Pending {
		if e.OwnerID == req.User.ID {
			pending++
		}
	}
	if pending >= limit {
		return Reject(CodeUserPending)
	}
	return Accept()
}

func init() {
	Register("user_pending_filter", func() Filter {
		return &UserPendingFilter{}
	})
}
