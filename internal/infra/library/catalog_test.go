package library

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/karabox/internal/domain/library"
)

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
songs:
  - id: s1
    title: Song One
    artist: Someone
    duration: 3m30s
  - id: s2
    title: Song Two
    duration: 90s
    tags:
      - name: NSFW
        disabled: true
`))
	require.NoError(t, err)

	s1, err := c.GetSong(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Song One", s1.Title)
	assert.Equal(t, 3*time.Minute+30*time.Second, s1.Duration)
	assert.False(t, s1.HasDisabledTag())

	s2, err := c.GetSong(context.Background(), "s2")
	require.NoError(t, err)
	assert.True(t, s2.HasDisabledTag())
	assert.Len(t, c.Songs(), 2)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{"missing id", "songs: [{title: x, duration: 1s}]", "no id"},
		{"missing duration", "songs: [{id: a}]", "no duration"},
		{"duplicate", "songs: [{id: a, duration: 1s}, {id: a, duration: 2s}]", "twice"},
		{"bad yaml", "songs: {", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGetSong_NotFound(t *testing.T) {
	c := New(library.Song{ID: "a", Duration: time.Second})
	_, err := c.GetSong(context.Background(), "b")
	assert.True(t, errors.Is(err, library.ErrSongNotFound))

	c.Add(library.Song{ID: "b", Duration: time.Second})
	_, err = c.GetSong(context.Background(), "b")
	assert.NoError(t, err)
}
