// Package filter provides the filter chain validating enqueue requests.
package filter

import (
	"context"
	"time"

	"github.com/osa030/karabox/internal/domain/karaoke"
	"github.com/osa030/karabox/internal/domain/library"
	"github.com/osa030/karabox/internal/domain/playlist"
	"github.com/osa030/karabox/internal/domain/user"
)

// Reject codes of the built-in filters.
const (
	CodeNotOngoing            = "not_ongoing"
	CodeAddDisabled           = "add_disabled"
	CodePlaylistFull          = "playlist_full"
	CodePastStopTime          = "past_stop_time"
	CodeSongDisabled          = "song_disabled"
	CodeDurationLimitExceeded = "duration_limit_exceeded"
	CodeUserPending           = "user_pending"
	CodeDuplicateSong         = "duplicate_song"
)

// EntryRequest is a snapshot of everything a filter may look at to decide
// whether a song can be queued.
type EntryRequest struct {
	User    user.User
	Song    library.Song
	Karaoke karaoke.Karaoke
	Pending []playlist.Entry // Entries not played yet, including the playing one
	// QueueEnd is when the requested song would start: now, plus the
	// remaining time of the playing entry, plus the queued durations.
	QueueEnd time.Time
	Now      time.Time
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "playlist_full", "past_stop_time"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for enqueue filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to the given user.
	AppliesTo(u user.User) bool
	// Check performs the filter check.
	Check(ctx context.Context, req EntryRequest) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
