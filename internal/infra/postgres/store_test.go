package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/karabox/internal/app/store"
	"github.com/osa030/karabox/internal/domain/karaoke"
	"github.com/osa030/karabox/internal/domain/library"
	"github.com/osa030/karabox/internal/domain/playlist"
)

var entryCols = []string{
	"id", "song_id", "song_title", "song_artist", "song_duration_ms", "owner_id", "owner_name",
	"use_instrumental", "date_created", "was_played", "date_played", "position",
}

func setupMock(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewStore(mock), mock
}

func TestStore_GetKaraoke(t *testing.T) {
	s, mock := setupMock(t)
	stop := time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC)
	channel := "ch-1"

	mock.ExpectExec("INSERT INTO karaoke").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("FROM karaoke").
		WillReturnRows(pgxmock.NewRows([]string{
			"ongoing", "can_add_to_playlist", "player_play_next_song", "date_stop", "channel_name",
		}).AddRow(true, false, true, &stop, &channel))

	k, err := s.GetKaraoke(context.Background())
	require.NoError(t, err)
	assert.True(t, k.Ongoing)
	assert.False(t, k.CanAddToPlaylist)
	assert.True(t, k.PlayerPlayNextSong)
	require.NotNil(t, k.DateStop)
	assert.Equal(t, stop, *k.DateStop)
	assert.Equal(t, "ch-1", k.ChannelName)
}

func TestStore_SaveKaraoke(t *testing.T) {
	s, mock := setupMock(t)
	k := karaoke.Default()

	mock.ExpectExec("INSERT INTO karaoke").
		WithArgs(true, true, true, (*time.Time)(nil), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveKaraoke(context.Background(), k))
}

func TestStore_GetEntry(t *testing.T) {
	s, mock := setupMock(t)
	created := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)
	played := created.Add(time.Minute)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("FROM playlist_entries WHERE id").
			WithArgs("e1").
			WillReturnRows(pgxmock.NewRows(entryCols).AddRow(
				"e1", "s1", "Song", "Artist", int64(210000), "u1", "Alice",
				true, created, false, &played, 2.5,
			))

		e, err := s.GetEntry(context.Background(), "e1")
		require.NoError(t, err)
		assert.Equal(t, "s1", e.Song.ID)
		assert.Equal(t, 3*time.Minute+30*time.Second, e.Song.Duration)
		assert.Equal(t, playlist.StatePlaying, e.State())
		assert.Equal(t, 2.5, e.Position)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery("FROM playlist_entries WHERE id").
			WithArgs("nope").
			WillReturnRows(pgxmock.NewRows(entryCols))

		_, err := s.GetEntry(context.Background(), "nope")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})
}

func TestStore_UpdateEntry_NotFound(t *testing.T) {
	s, mock := setupMock(t)
	mock.ExpectExec("UPDATE playlist_entries").
		WithArgs("e1", false, true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateEntry(context.Background(), playlist.Entry{ID: "e1", WasPlayed: true, Position: 1})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestStore_QueuedOnlyWrites(t *testing.T) {
	const queuedOnly = "WHERE id = \\$1 AND NOT was_played AND date_played IS NULL"
	reposition := func(s *Store) error { return s.UpdatePosition(context.Background(), "e1", 2.5) }
	remove := func(s *Store) error { return s.DeleteQueued(context.Background(), "e1") }

	tests := []struct {
		name    string
		args    []any
		rows    int64
		call    func(s *Store) error
		wantErr error
	}{
		{"reposition queued entry", []any{"e1", 2.5}, 1, reposition, nil},
		{"reposition started entry", []any{"e1", 2.5}, 0, reposition, store.ErrNotFound},
		{"delete queued entry", []any{"e1"}, 1, remove, nil},
		{"delete started entry", []any{"e1"}, 0, remove, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := setupMock(t)
			mock.ExpectExec(queuedOnly).
				WithArgs(tt.args...).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.rows))

			err := tt.call(s)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStore_InsertEntry(t *testing.T) {
	s, mock := setupMock(t)
	created := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)
	e := playlist.Entry{
		ID:          "e1",
		Song:        library.Song{ID: "s1", Title: "Song", Duration: 90 * time.Second},
		OwnerID:     "u1",
		OwnerName:   "Alice",
		DateCreated: created,
		Position:    3,
	}

	mock.ExpectExec("INSERT INTO playlist_entries").
		WithArgs("e1", "s1", "Song", "", int64(90000), "u1", "Alice",
			false, created, false, (*time.Time)(nil), 3.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.InsertEntry(context.Background(), e))
}

func TestStore_ListQueued(t *testing.T) {
	s, mock := setupMock(t)
	created := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE NOT was_played AND date_played IS NULL").
		WillReturnRows(pgxmock.NewRows(entryCols).
			AddRow("e1", "s1", "One", "", int64(1000), "u1", "Alice", false, created, false, (*time.Time)(nil), 1.0).
			AddRow("e2", "s2", "Two", "", int64(2000), "u2", "Bob", false, created, false, (*time.Time)(nil), 2.0))

	entries, err := s.ListQueued(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, "e2", entries[1].ID)
	for _, e := range entries {
		assert.Equal(t, playlist.StateQueued, e.State())
	}
}

func TestStore_Counters(t *testing.T) {
	s, mock := setupMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(position\\), 0\\)").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(4.0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM playlist_entries").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	top, err := s.MaxPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4.0, top)

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestStore_WithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM playlist_entries").
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mock.ExpectExec("DELETE FROM player_errors").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		err := s.WithTx(ctx, func(q store.Queries) error {
			if err := q.DeleteAllEntries(ctx); err != nil {
				return err
			}
			return q.DeleteAllPlayerErrors(ctx)
		})
		require.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		s, mock := setupMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM playlist_entries").
			WillReturnError(pgx.ErrTxClosed)
		mock.ExpectRollback()

		err := s.WithTx(ctx, func(q store.Queries) error {
			return q.DeleteAllEntries(ctx)
		})
		assert.True(t, errors.Is(err, pgx.ErrTxClosed))
	})
}

func TestStore_ListPlayerErrors(t *testing.T) {
	s, mock := setupMock(t)
	at := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM player_errors").
		WillReturnRows(pgxmock.NewRows([]string{"id", "playlist_entry_id", "error_message", "date_created"}).
			AddRow("pe1", "e1", "could not play", at))

	errs, err := s.ListPlayerErrors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []playlist.PlayerError{{ID: "pe1", EntryID: "e1", Message: "could not play", DateCreated: at}}, errs)
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for range migrations {
		mock.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}
