// Package library provides a song catalog read from a YAML file.
package library

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/osa030/karabox/internal/domain/library"
)

type songDoc struct {
	ID       string        `yaml:"id"`
	Title    string        `yaml:"title"`
	Artist   string        `yaml:"artist"`
	Duration time.Duration `yaml:"duration"` // e.g. "3m42s"
	Tags     []library.Tag `yaml:"tags"`
}

type catalogDoc struct {
	Songs []songDoc `yaml:"songs"`
}

// Catalog is an in-memory song catalog.
type Catalog struct {
	mu    sync.RWMutex
	songs map[string]library.Song
}

// New creates a catalog holding the given songs.
func New(songs ...library.Song) *Catalog {
	c := &Catalog{songs: make(map[string]library.Song, len(songs))}
	for _, s := range songs {
		c.songs[s.ID] = s
	}
	return c
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read library file")
	}
	return Parse(data)
}

// Parse parses a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse library file")
	}

	c := New()
	for i, d := range doc.Songs {
		if d.ID == "" {
			return nil, errors.Newf("song #%d has no id", i+1)
		}
		if d.Duration <= 0 {
			return nil, errors.Newf("song %s has no duration", d.ID)
		}
		if _, dup := c.songs[d.ID]; dup {
			return nil, errors.Newf("song %s is listed twice", d.ID)
		}
		c.songs[d.ID] = library.Song{
			ID:       d.ID,
			Title:    d.Title,
			Artist:   d.Artist,
			Duration: d.Duration,
			Tags:     d.Tags,
		}
	}
	return c, nil
}

// GetSong returns the song with the given ID.
func (c *Catalog) GetSong(ctx context.Context, id string) (library.Song, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.songs[id]
	if !ok {
		return library.Song{}, errors.Wrapf(library.ErrSongNotFound, "id=%s", id)
	}
	return s, nil
}

// Add inserts or replaces a song.
func (c *Catalog) Add(s library.Song) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.songs[s.ID] = s
}

// Songs returns every song of the catalog.
func (c *Catalog) Songs() []library.Song {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]library.Song, 0, len(c.songs))
	for _, s := range c.songs {
		out = append(out, s)
	}
	return out
}
