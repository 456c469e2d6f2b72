// Package player provides the player status, events and commands.
package player

import (
	"encoding/json"
	"time"
)

// Status represents what the player device is currently doing.
// An empty EntryID means the player is idle.
type Status struct {
	EntryID      string
	Timing       time.Duration // Elapsed playback time at Date
	Paused       bool
	InTransition bool // Transition clip before the song; timing is pinned to zero
	Date         time.Time
}

// Idle returns an idle status stamped at now.
func Idle(now time.Time) Status {
	return Status{Date: now}
}

// IsIdle reports whether no entry is referenced.
func (s Status) IsIdle() bool {
	return s.EntryID == ""
}

// Reset sets the status back to idle.
func (s *Status) Reset(now time.Time) {
	*s = Idle(now)
}

// Live returns the status as seen at now: while a song is running, the time
// elapsed since the last report is added to the timing.
func (s Status) Live(now time.Time) Status {
	if s.IsIdle() || s.Paused || s.InTransition {
		return s
	}
	if elapsed := now.Sub(s.Date); elapsed > 0 {
		s.Timing += elapsed
	}
	s.Date = now
	return s
}

// Remaining returns how much of a song of the given duration is left to play.
func (s Status) Remaining(duration time.Duration) time.Duration {
	if s.IsIdle() {
		return 0
	}
	if rest := duration - s.Timing; rest > 0 {
		return rest
	}
	return 0
}

type statusJSON struct {
	EntryID      *string   `json:"playlist_entry_id"`
	Timing       float64   `json:"timing"`
	Paused       bool      `json:"paused"`
	InTransition bool      `json:"in_transition"`
	Date         time.Time `json:"date"`
}

// MarshalJSON encodes the timing in seconds and the idle entry as null.
func (s Status) MarshalJSON() ([]byte, error) {
	v := statusJSON{
		Timing:       s.Timing.Seconds(),
		Paused:       s.Paused,
		InTransition: s.InTransition,
		Date:         s.Date,
	}
	if s.EntryID != "" {
		id := s.EntryID
		v.EntryID = &id
	}
	return json.Marshal(v)
}

// UnmarshalJSON decodes a status encoded by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var v statusJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Status{
		Timing:       time.Duration(v.Timing * float64(time.Second)),
		Paused:       v.Paused,
		InTransition: v.InTransition,
		Date:         v.Date,
	}
	if v.EntryID != nil {
		s.EntryID = *v.EntryID
	}
	return nil
}
