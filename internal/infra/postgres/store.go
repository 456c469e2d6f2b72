package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/osa030/karabox/internal/app/store"
	"github.com/osa030/karabox/internal/domain/karaoke"
	"github.com/osa030/karabox/internal/domain/library"
	"github.com/osa030/karabox/internal/domain/playlist"
)

const entryColumns = `id, song_id, song_title, song_artist, song_duration_ms, owner_id, owner_name,
		use_instrumental, date_created, was_played, date_played, position`

// Store is the PostgreSQL store.Store.
type Store struct {
	queries
	db DB
}

// NewStore creates a store on db.
func NewStore(db DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// WithTx runs fn in a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx)

	if err := fn(queries{q: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// queries runs store.Queries on a pool or a transaction.
type queries struct {
	q querier
}

func (s queries) GetKaraoke(ctx context.Context) (karaoke.Karaoke, error) {
	if _, err := s.q.Exec(ctx, `INSERT INTO karaoke (id) VALUES (1) ON CONFLICT (id) DO NOTHING`); err != nil {
		return karaoke.Karaoke{}, errors.Wrap(err, "create karaoke")
	}

	var k karaoke.Karaoke
	var channel *string
	err := s.q.QueryRow(ctx, `
		SELECT ongoing, can_add_to_playlist, player_play_next_song, date_stop, channel_name
		FROM karaoke
		WHERE id = 1
	`).Scan(&k.Ongoing, &k.CanAddToPlaylist, &k.PlayerPlayNextSong, &k.DateStop, &channel)
	if err != nil {
		return karaoke.Karaoke{}, errors.Wrap(err, "select karaoke")
	}
	if channel != nil {
		k.ChannelName = *channel
	}
	return k, nil
}

func (s queries) SaveKaraoke(ctx context.Context, k karaoke.Karaoke) error {
	var channel *string
	if k.ChannelName != "" {
		channel = &k.ChannelName
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO karaoke (id, ongoing, can_add_to_playlist, player_play_next_song, date_stop, channel_name)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			ongoing = EXCLUDED.ongoing,
			can_add_to_playlist = EXCLUDED.can_add_to_playlist,
			player_play_next_song = EXCLUDED.player_play_next_song,
			date_stop = EXCLUDED.date_stop,
			channel_name = EXCLUDED.channel_name
	`, k.Ongoing, k.CanAddToPlaylist, k.PlayerPlayNextSong, k.DateStop, channel)
	return errors.Wrap(err, "save karaoke")
}

func (s queries) InsertEntry(ctx context.Context, e playlist.Entry) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO playlist_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.Song.ID, e.Song.Title, e.Song.Artist, e.Song.Duration.Milliseconds(), e.OwnerID, e.OwnerName,
		e.UseInstrumental, e.DateCreated, e.WasPlayed, e.DatePlayed, e.Position)
	return errors.Wrap(err, "insert entry")
}

func (s queries) GetEntry(ctx context.Context, id string) (playlist.Entry, error) {
	rows, err := s.q.Query(ctx, `SELECT `+entryColumns+` FROM playlist_entries WHERE id = $1`, id)
	if err != nil {
		return playlist.Entry{}, errors.Wrap(err, "select entry")
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return playlist.Entry{}, err
	}
	if len(entries) == 0 {
		return playlist.Entry{}, errors.Wrapf(store.ErrNotFound, "entry %s", id)
	}
	return entries[0], nil
}

func (s queries) UpdateEntry(ctx context.Context, e playlist.Entry) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE playlist_entries
		SET use_instrumental = $2, was_played = $3, date_played = $4
		WHERE id = $1
	`, e.ID, e.UseInstrumental, e.WasPlayed, e.DatePlayed)
	if err != nil {
		return errors.Wrap(err, "update entry")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(store.ErrNotFound, "entry %s", e.ID)
	}
	return nil
}

// UpdatePosition and DeleteQueued only match queued rows, so a row started
// by a concurrent transaction is reported as not found.
func (s queries) UpdatePosition(ctx context.Context, id string, position float64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE playlist_entries SET position = $2
		WHERE id = $1 AND NOT was_played AND date_played IS NULL
	`, id, position)
	if err != nil {
		return errors.Wrap(err, "update position")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(store.ErrNotFound, "queued entry %s", id)
	}
	return nil
}

func (s queries) DeleteQueued(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM playlist_entries
		WHERE id = $1 AND NOT was_played AND date_played IS NULL
	`, id)
	if err != nil {
		return errors.Wrap(err, "delete entry")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(store.ErrNotFound, "queued entry %s", id)
	}
	return nil
}

func (s queries) DeleteAllEntries(ctx context.Context) error {
	_, err := s.q.Exec(ctx, `DELETE FROM playlist_entries`)
	return errors.Wrap(err, "delete entries")
}

func (s queries) ListQueued(ctx context.Context) ([]playlist.Entry, error) {
	return s.listEntries(ctx, `
		SELECT `+entryColumns+`
		FROM playlist_entries
		WHERE NOT was_played AND date_played IS NULL
		ORDER BY position, date_created
	`)
}

func (s queries) ListPlaying(ctx context.Context) ([]playlist.Entry, error) {
	return s.listEntries(ctx, `
		SELECT `+entryColumns+`
		FROM playlist_entries
		WHERE NOT was_played AND date_played IS NOT NULL
		FOR UPDATE
	`)
}

func (s queries) ListPlayed(ctx context.Context) ([]playlist.Entry, error) {
	return s.listEntries(ctx, `
		SELECT `+entryColumns+`
		FROM playlist_entries
		WHERE was_played
		ORDER BY date_played, date_created
	`)
}

func (s queries) MaxPosition(ctx context.Context) (float64, error) {
	var top float64
	err := s.q.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) FROM playlist_entries`).Scan(&top)
	return top, errors.Wrap(err, "select max position")
}

func (s queries) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM playlist_entries WHERE NOT was_played`).Scan(&n)
	return n, errors.Wrap(err, "count pending entries")
}

func (s queries) InsertPlayerError(ctx context.Context, pe playlist.PlayerError) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO player_errors (id, playlist_entry_id, error_message, date_created)
		VALUES ($1, $2, $3, $4)
	`, pe.ID, pe.EntryID, pe.Message, pe.DateCreated)
	return errors.Wrap(err, "insert player error")
}

func (s queries) ListPlayerErrors(ctx context.Context) ([]playlist.PlayerError, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, playlist_entry_id, error_message, date_created
		FROM player_errors
		ORDER BY date_created
	`)
	if err != nil {
		return nil, errors.Wrap(err, "select player errors")
	}
	defer rows.Close()

	out := []playlist.PlayerError{}
	for rows.Next() {
		var pe playlist.PlayerError
		if err := rows.Scan(&pe.ID, &pe.EntryID, &pe.Message, &pe.DateCreated); err != nil {
			return nil, errors.Wrap(err, "scan player error")
		}
		out = append(out, pe)
	}
	return out, errors.Wrap(rows.Err(), "iterate player errors")
}

func (s queries) DeleteAllPlayerErrors(ctx context.Context) error {
	_, err := s.q.Exec(ctx, `DELETE FROM player_errors`)
	return errors.Wrap(err, "delete player errors")
}

func (s queries) listEntries(ctx context.Context, sql string) ([]playlist.Entry, error) {
	rows, err := s.q.Query(ctx, sql)
	if err != nil {
		return nil, errors.Wrap(err, "select entries")
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]playlist.Entry, error) {
	defer rows.Close()

	out := []playlist.Entry{}
	for rows.Next() {
		var e playlist.Entry
		var durationMs int64
		var datePlayed *time.Time
		err := rows.Scan(&e.ID, &e.Song.ID, &e.Song.Title, &e.Song.Artist, &durationMs, &e.OwnerID, &e.OwnerName,
			&e.UseInstrumental, &e.DateCreated, &e.WasPlayed, &datePlayed, &e.Position)
		if err != nil {
			return nil, errors.Wrap(err, "scan entry")
		}
		e.Song.Duration = time.Duration(durationMs) * time.Millisecond
		e.DatePlayed = datePlayed
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate entries")
}

var (
	_ store.Store     = (*Store)(nil)
	_ library.Catalog = (*Catalog)(nil)
)
