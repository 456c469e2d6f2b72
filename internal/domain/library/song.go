// Package library provides the Song read model consumed from the song library.
package library

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrSongNotFound is returned by a Catalog when no song has the given ID.
var ErrSongNotFound = errors.New("song not found")

// Tag represents a song tag. A disabled tag blocks the song from being queued
// by regular playlist users.
type Tag struct {
	Name     string `json:"name" yaml:"name"`
	Disabled bool   `json:"disabled" yaml:"disabled"`
}

// Song represents a song of the library.
type Song struct {
	ID       string        // Library song ID
	Title    string        // Song title
	Artist   string        // Artist name (optional)
	Duration time.Duration // Song duration
	Tags     []Tag         // Song tags
}

// HasDisabledTag reports whether any tag of the song is disabled.
func (s Song) HasDisabledTag() bool {
	for _, t := range s.Tags {
		if t.Disabled {
			return true
		}
	}
	return false
}

type songJSON struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist,omitempty"`
	Duration float64 `json:"duration"`
	Tags     []Tag   `json:"tags,omitempty"`
}

// MarshalJSON encodes the duration in seconds.
func (s Song) MarshalJSON() ([]byte, error) {
	return json.Marshal(songJSON{
		ID:       s.ID,
		Title:    s.Title,
		Artist:   s.Artist,
		Duration: s.Duration.Seconds(),
		Tags:     s.Tags,
	})
}

// UnmarshalJSON decodes a song whose duration is given in seconds.
func (s *Song) UnmarshalJSON(data []byte) error {
	var v songJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Song{
		ID:       v.ID,
		Title:    v.Title,
		Artist:   v.Artist,
		Duration: time.Duration(v.Duration * float64(time.Second)),
		Tags:     v.Tags,
	}
	return nil
}

// Catalog looks songs up in the library.
type Catalog interface {
	GetSong(ctx context.Context, id string) (Song, error)
}
