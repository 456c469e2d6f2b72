package session

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/karabox/internal/app/filter"
	"github.com/osa030/karabox/internal/app/store"
	"github.com/osa030/karabox/internal/domain/library"
	"github.com/osa030/karabox/internal/domain/player"
)

// Rejection is a refused request. Its code is stable and lets callers tell
// one reason from another.
type Rejection struct {
	code string
	msg  string
}

func (r *Rejection) Error() string { return r.msg }

// Code returns the machine-readable reason.
func (r *Rejection) Code() string { return r.code }

var (
	ErrNotOngoing      = &Rejection{filter.CodeNotOngoing, "karaoke is not ongoing"}
	ErrAddDisabled     = &Rejection{filter.CodeAddDisabled, "adding to the playlist is disabled"}
	ErrPlaylistFull    = &Rejection{filter.CodePlaylistFull, "playlist is full"}
	ErrPastStopTime    = &Rejection{filter.CodePastStopTime, "song would end after the karaoke stop date"}
	ErrSongDisabled    = &Rejection{filter.CodeSongDisabled, "song is disabled"}
	ErrForbidden       = &Rejection{"forbidden", "permission denied"}
	ErrNotFound        = &Rejection{"not_found", "not found"}
	ErrPlayerIdle      = &Rejection{"player_idle", "player is idle"}
	ErrPlayerConnected = &Rejection{"player_connected", "a player is already connected"}
	ErrAlreadyPlaying  = &Rejection{"already_playing", "another entry is already playing"}
	ErrIncoherentEvent = &Rejection{"incoherent_event", "event does not match the player state"}
	ErrUnknownEvent    = &Rejection{"unknown_event", "unknown player event"}
	ErrUnknownCommand  = &Rejection{"unknown_command", "unknown player command"}
	ErrInvalidRequest  = &Rejection{"invalid_request", "invalid request"}

	// ErrInvariantViolated marks a broken consistency rule of the store.
	// It is never a normal outcome and is not retried.
	ErrInvariantViolated = errors.New("invariant violated")
)

var rejections = []*Rejection{
	ErrNotOngoing, ErrAddDisabled, ErrPlaylistFull, ErrPastStopTime, ErrSongDisabled,
	ErrForbidden, ErrNotFound, ErrPlayerIdle, ErrPlayerConnected, ErrAlreadyPlaying,
	ErrIncoherentEvent, ErrUnknownEvent, ErrUnknownCommand, ErrInvalidRequest,
}

// rejection returns the error for a filter code. Codes without a sentinel
// (optional filters) get their own Rejection.
func rejection(code string) error {
	for _, r := range rejections {
		if r.code == code {
			return r
		}
	}
	return &Rejection{code: code, msg: "rejected: " + code}
}

// Code returns the rejection code carried by err, or "" for other errors.
// Lower layer sentinels are mapped as well.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var r *Rejection
	if errors.As(err, &r) {
		return r.code
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, library.ErrSongNotFound):
		return ErrNotFound.code
	case errors.Is(err, player.ErrUnknownEvent):
		return ErrUnknownEvent.code
	case errors.Is(err, player.ErrUnknownCommand):
		return ErrUnknownCommand.code
	}
	return ""
}

// IsInvariantViolation reports whether err signals an inconsistent store.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolated)
}

// invariantf builds an assertion failure marked as an invariant violation.
func invariantf(format string, args ...any) error {
	return errors.Mark(errors.AssertionFailedf(format, args...), ErrInvariantViolated)
}
