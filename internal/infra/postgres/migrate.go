package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

var migrations = []struct {
	name string
	sql  string
}{
	{"karaoke", `
      CREATE TABLE IF NOT EXISTS karaoke (
          id                    INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
          ongoing               BOOLEAN NOT NULL DEFAULT TRUE,
          can_add_to_playlist   BOOLEAN NOT NULL DEFAULT TRUE,
          player_play_next_song BOOLEAN NOT NULL DEFAULT TRUE,
          date_stop             TIMESTAMPTZ,
          channel_name          TEXT
      )
    `},
	{"songs", `
      CREATE TABLE IF NOT EXISTS songs (
          id          TEXT PRIMARY KEY,
          title       TEXT NOT NULL,
          artist      TEXT NOT NULL DEFAULT '',
          duration_ms BIGINT NOT NULL CHECK (duration_ms > 0)
      )
    `},
	{"song_tags", `
      CREATE TABLE IF NOT EXISTS song_tags (
          song_id  TEXT NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
          name     TEXT NOT NULL,
          disabled BOOLEAN NOT NULL DEFAULT FALSE,
          PRIMARY KEY (song_id, name)
      )
    `},
	{"playlist_entries", `
      CREATE TABLE IF NOT EXISTS playlist_entries (
          id               TEXT PRIMARY KEY,
          song_id          TEXT NOT NULL,
          song_title       TEXT NOT NULL,
          song_artist      TEXT NOT NULL DEFAULT '',
          song_duration_ms BIGINT NOT NULL,
          owner_id         TEXT NOT NULL,
          owner_name       TEXT NOT NULL DEFAULT '',
          use_instrumental BOOLEAN NOT NULL DEFAULT FALSE,
          date_created     TIMESTAMPTZ NOT NULL DEFAULT now(),
          was_played       BOOLEAN NOT NULL DEFAULT FALSE,
          date_played      TIMESTAMPTZ,
          position         DOUBLE PRECISION NOT NULL
      )
    `},
	// At most one entry may be playing.
	{"playlist_entries_playing", `
      CREATE UNIQUE INDEX IF NOT EXISTS idx_playlist_entries_playing
      ON playlist_entries ((TRUE))
      WHERE NOT was_played AND date_played IS NOT NULL
    `},
	{"playlist_entries_position", `
      CREATE INDEX IF NOT EXISTS idx_playlist_entries_position
      ON playlist_entries (position)
      WHERE NOT was_played
    `},
	{"player_errors", `
      CREATE TABLE IF NOT EXISTS player_errors (
          id                TEXT PRIMARY KEY,
          playlist_entry_id TEXT NOT NULL REFERENCES playlist_entries(id) ON DELETE CASCADE,
          error_message     TEXT NOT NULL,
          date_created      TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `},
}

// Migrate creates the tables. It is safe to run on every start.
func Migrate(ctx context.Context, db DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return errors.Wrapf(err, "migrate %s", m.name)
		}
		zlog.Debug().Msgf("migration applied: %s", m.name)
	}
	return nil
}
