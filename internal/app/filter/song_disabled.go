package filter

import (
	"context"

	"github.com/osa030/karabox/internal/domain/user"
)

// SongDisabledFilter rejects songs carrying a disabled tag.
type SongDisabledFilter struct{}

func (f *SongDisabledFilter) Name() string {
	return "song_disabled_filter"
}

func (f *SongDisabledFilter) Description() string {
	return "Checks if the song carries a disabled tag"
}

func (f *SongDisabledFilter) ReturnCodes() []string {
	return []string{CodeSongDisabled}
}

func (f *SongDisabledFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *SongDisabledFilter) AppliesTo(u user.User) bool {
	// Bypass requires managing both the playlist and the library
	return !(u.IsPlaylistManager() && u.IsLibraryManager())
}

func (f *SongDisabledFilter) Check(ctx context.Context, req EntryRequest) Result {
	if req.Song.HasDisabledTag() {
		return Reject(CodeSongDisabled)
	}
	return Accept()
}
