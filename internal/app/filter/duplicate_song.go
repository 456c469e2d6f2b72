package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/karabox/internal/domain/library"
	"github.com/osa030/karabox/internal/domain/user"
)

// DuplicateSongFilter checks for duplicate songs in the playlist.
// Detects:
// - Exact song ID matches
// - Other versions of the song (normalized title + same artist)
// Excludes:
// - Covers (same title but different artist)
type DuplicateSongFilter struct{}

func (f *DuplicateSongFilter) Name() string {
	return "duplicate_song_filter"
}

func (f *DuplicateSongFilter) Description() string {
	return "Rejects songs already waiting in the playlist, including other versions of them"
}

func (f *DuplicateSongFilter) ReturnCodes() []string {
	return []string{CodeDuplicateSong}
}

func (f *DuplicateSongFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *DuplicateSongFilter) AppliesTo(u user.User) bool {
	return !u.IsPlaylistManager()
}

func (f *DuplicateSongFilter) Check(ctx context.Context, req EntryRequest) Result {
	for _, e := range req.Pending {
		if e.Song.ID == req.Song.ID || isSameSong(e.Song, req.Song) {
			return Reject(CodeDuplicateSong)
		}
	}
	return Accept()
}

// isSameSong reports whether two songs are versions of the same recording.
func isSameSong(a, b library.Song) bool {
	if normalizeTitle(a.Title) != normalizeTitle(b.Title) {
		return false
	}
	if a.Artist == "" || b.Artist == "" {
		return false
	}
	return strings.EqualFold(a.Artist, b.Artist)
}

var (
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?(version|edit|size|mix)\)`), // "(Karaoke Version)", "(TV Size)"
		regexp.MustCompile(`\s*\[.*?(version|edit|size|mix)\]`), // "[Short Version]"
		regexp.MustCompile(`\s*\((off vocal|instrumental|live)\)`),
		regexp.MustCompile(`\s*-\s*(off vocal|instrumental|live)$`),
	}
	spaces = regexp.MustCompile(`\s+`)
)

// normalizeTitle removes version details from a song title.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	normalized = strings.TrimSpace(normalized)
	normalized = spaces.ReplaceAllString(normalized, " ")
	return strings.TrimRight(normalized, " -")
}

func init() {
	Register("duplicate_song_filter", func() Filter {
		return &DuplicateSongFilter{}
	})
}
