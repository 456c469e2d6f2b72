package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/osa030/karabox/internal/domain/library"
)

// Catalog is the song library stored in PostgreSQL.
type Catalog struct {
	db DB
}

// NewCatalog creates a catalog on db.
func NewCatalog(db DB) *Catalog {
	return &Catalog{db: db}
}

// GetSong returns the song with the given ID and its tags.
func (c *Catalog) GetSong(ctx context.Context, id string) (library.Song, error) {
	s := library.Song{ID: id}
	var durationMs int64
	err := c.db.QueryRow(ctx, `
		SELECT title, artist, duration_ms
		FROM songs
		WHERE id = $1
	`, id).Scan(&s.Title, &s.Artist, &durationMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return library.Song{}, errors.Wrapf(library.ErrSongNotFound, "id=%s", id)
	}
	if err != nil {
		return library.Song{}, errors.Wrap(err, "select song")
	}
	s.Duration = time.Duration(durationMs) * time.Millisecond

	rows, err := c.db.Query(ctx, `
		SELECT name, disabled
		FROM song_tags
		WHERE song_id = $1
		ORDER BY name
	`, id)
	if err != nil {
		return library.Song{}, errors.Wrap(err, "select song tags")
	}
	defer rows.Close()
	for rows.Next() {
		var t library.Tag
		if err := rows.Scan(&t.Name, &t.Disabled); err != nil {
			return library.Song{}, errors.Wrap(err, "scan song tag")
		}
		s.Tags = append(s.Tags, t)
	}
	return s, errors.Wrap(rows.Err(), "iterate song tags")
}

// UpsertSong inserts or replaces a song and its tags.
func (c *Catalog) UpsertSong(ctx context.Context, s library.Song) error {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO songs (id, title, artist, duration_ms)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			artist = EXCLUDED.artist,
			duration_ms = EXCLUDED.duration_ms
	`, s.ID, s.Title, s.Artist, s.Duration.Milliseconds())
	if err != nil {
		return errors.Wrapf(err, "upsert song %s", s.ID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM song_tags WHERE song_id = $1`, s.ID); err != nil {
		return errors.Wrapf(err, "clear tags of %s", s.ID)
	}
	for _, t := range s.Tags {
		_, err := tx.Exec(ctx, `
			INSERT INTO song_tags (song_id, name, disabled)
			VALUES ($1, $2, $3)
		`, s.ID, t.Name, t.Disabled)
		if err != nil {
			return errors.Wrapf(err, "insert tag %s of %s", t.Name, s.ID)
		}
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}
