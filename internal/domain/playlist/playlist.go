// Package playlist provides the PlaylistEntry and PlayerError domain entities.
package playlist

import (
	"time"

	"github.com/osa030/karabox/internal/domain/library"
)

// State is the lifecycle position of an entry, derived from WasPlayed and
// DatePlayed.
type State int

const (
	StateQueued  State = iota // Waiting in the queue
	StatePlaying              // Started by the player, not finished
	StatePlayed               // Finished, failed or skipped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StatePlaying:
		return "playing"
	case StatePlayed:
		return "played"
	default:
		return "unknown"
	}
}

// Entry represents a song queued in the karaoke playlist.
type Entry struct {
	ID              string       `json:"id"`
	Song            library.Song `json:"song"`
	OwnerID         string       `json:"owner_id"`
	OwnerName       string       `json:"owner_name"`
	UseInstrumental bool         `json:"use_instrumental"`
	DateCreated     time.Time    `json:"date_created"`
	WasPlayed       bool         `json:"was_played"`
	DatePlayed      *time.Time   `json:"date_played"`
	Position        float64      `json:"-"` // Manual order key
}

// State returns the derived lifecycle state of the entry.
func (e Entry) State() State {
	switch {
	case e.WasPlayed:
		return StatePlayed
	case e.DatePlayed != nil:
		return StatePlaying
	default:
		return StateQueued
	}
}

// IsPlaying reports whether the entry is the one currently played.
func (e Entry) IsPlaying() bool {
	return e.State() == StatePlaying
}

// PlayerError represents a failure of the player to play an entry.
type PlayerError struct {
	ID          string    `json:"id"`
	EntryID     string    `json:"playlist_entry_id"`
	Message     string    `json:"error_message"`
	DateCreated time.Time `json:"date_created"`
}

// Scheduled pairs a queued entry with its projected play time.
type Scheduled struct {
	Entry
	DatePlay time.Time `json:"date_play"`
}

// Schedule is the projected timeline of the queue.
type Schedule struct {
	Entries []Scheduled `json:"results"`
	DateEnd time.Time   `json:"date_end"`
}

// BuildSchedule walks entries in order from start and accumulates their
// durations.
func BuildSchedule(start time.Time, entries []Entry) Schedule {
	sched := Schedule{Entries: make([]Scheduled, 0, len(entries))}
	at := start
	for _, e := range entries {
		sched.Entries = append(sched.Entries, Scheduled{Entry: e, DatePlay: at})
		at = at.Add(e.Song.Duration)
	}
	sched.DateEnd = at
	return sched
}

// TotalDuration returns the total duration of all entries.
func TotalDuration(entries []Entry) time.Duration {
	var total time.Duration
	for _, e := range entries {
		total += e.Song.Duration
	}
	return total
}
