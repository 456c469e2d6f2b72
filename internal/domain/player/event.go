package player

import (
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrUnknownEvent   = errors.New("unknown player event")
	ErrUnknownCommand = errors.New("unknown player command")
)

// Event is the kind of a status report sent by the player.
type Event string

const (
	EventStartedTransition Event = "started_transition"
	EventStartedSong       Event = "started_song"
	EventPaused            Event = "paused"
	EventResumed           Event = "resumed"
	EventUpdatedTiming     Event = "updated_timing"
	EventFinished          Event = "finished"
	EventCouldNotPlay      Event = "could_not_play"
)

// Events lists every event the player may report.
var Events = []Event{
	EventStartedTransition,
	EventStartedSong,
	EventPaused,
	EventResumed,
	EventUpdatedTiming,
	EventFinished,
	EventCouldNotPlay,
}

// ParseEvent parses an event name.
func ParseEvent(s string) (Event, error) {
	for _, e := range Events {
		if string(e) == s {
			return e, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownEvent, "event=%q", s)
}

// AllowedWhenIdle reports whether the event can be reported by an idle player.
func (e Event) AllowedWhenIdle() bool {
	return e == EventStartedTransition || e == EventCouldNotPlay
}

// Report is a status report sent by the player.
type Report struct {
	Event   Event
	EntryID string
	Timing  time.Duration
	Message string // Error text, used by could_not_play
}

// CommandKind is the kind of a control command sent to the player.
type CommandKind string

const (
	CommandPlay  CommandKind = "play"
	CommandPause CommandKind = "pause"
	CommandSkip  CommandKind = "skip"
)

// ParseCommand parses a command name.
func ParseCommand(s string) (CommandKind, error) {
	switch k := CommandKind(s); k {
	case CommandPlay, CommandPause, CommandSkip:
		return k, nil
	default:
		return "", errors.Wrapf(ErrUnknownCommand, "command=%q", s)
	}
}

// Command is a pending control command.
type Command struct {
	Kind CommandKind `json:"command"`
	Date time.Time   `json:"date"`
}
