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

	"github.com/osa030/karabox/internal/domain/library"
)

func TestCatalog_GetSong(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	c := NewCatalog(mock)

	t.Run("with tags", func(t *testing.T) {
		mock.ExpectQuery("FROM songs").
			WithArgs("s1").
			WillReturnRows(pgxmock.NewRows([]string{"title", "artist", "duration_ms"}).
				AddRow("Song", "Artist", int64(180000)))
		mock.ExpectQuery("FROM song_tags").
			WithArgs("s1").
			WillReturnRows(pgxmock.NewRows([]string{"name", "disabled"}).
				AddRow("ballad", false).
				AddRow("explicit", true))

		s, err := c.GetSong(context.Background(), "s1")
		require.NoError(t, err)
		assert.Equal(t, "Song", s.Title)
		assert.Equal(t, 3*time.Minute, s.Duration)
		assert.Len(t, s.Tags, 2)
		assert.True(t, s.HasDisabledTag())
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery("FROM songs").
			WithArgs("nope").
			WillReturnError(pgx.ErrNoRows)

		_, err := c.GetSong(context.Background(), "nope")
		assert.True(t, errors.Is(err, library.ErrSongNotFound))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_UpsertSong(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	c := NewCatalog(mock)

	song := library.Song{
		ID:       "s1",
		Title:    "Song",
		Duration: 2 * time.Minute,
		Tags:     []library.Tag{{Name: "explicit", Disabled: true}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO songs").
		WithArgs("s1", "Song", "", int64(120000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM song_tags").
		WithArgs("s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO song_tags").
		WithArgs("s1", "explicit", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, c.UpsertSong(context.Background(), song))
	assert.NoError(t, mock.ExpectationsWereMet())
}
