package filter

import (
	"context"

	"github.com/osa030/karabox/internal/domain/user"
)

// AddDisabledFilter rejects requests while adding to the playlist is closed.
type AddDisabledFilter struct{}

func (f *AddDisabledFilter) Name() string {
	return "add_disabled_filter"
}

func (f *AddDisabledFilter) Description() string {
	return "Checks if adding songs to the playlist is allowed"
}

func (f *AddDisabledFilter) ReturnCodes() []string {
	return []string{CodeAddDisabled}
}

func (f *AddDisabledFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *AddDisabledFilter) AppliesTo(u user.User) bool {
	// Managers and superusers can always add
	return !u.IsPlaylistManager()
}

func (f *AddDisabledFilter) Check(ctx context.Context, req EntryRequest) Result {
	if !req.Karaoke.CanAddToPlaylist {
		return Reject(CodeAddDisabled)
	}
	return Accept()
}
