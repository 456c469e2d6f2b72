package session

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/karabox/internal/app/notification"
	"github.com/osa030/karabox/internal/domain/karaoke"
	"github.com/osa030/karabox/internal/domain/player"
	"github.com/osa030/karabox/internal/domain/playlist"
	"github.com/osa030/karabox/internal/domain/user"
)

func queueIDs(t *testing.T, f *fixture) []string {
	t.Helper()
	sched, err := f.m.Schedule(context.Background())
	require.NoError(t, err)
	out := make([]string, len(sched.Entries))
	for i, e := range sched.Entries {
		out[i] = e.ID
	}
	return out
}

func TestEnqueue_PushesToIdlePlayer(t *testing.T) {
	f := newFixture(t)

	e1 := f.enqueue(t, alice, "five")
	ev := f.lastPlayerEvent(t)
	assert.Equal(t, notification.TypePlaylistEntry, ev.Type)
	assert.Equal(t, e1.ID, ev.Data.(playlist.Entry).ID)

	f.enqueue(t, bob, "ten")
	assert.Len(t, f.player.Events(), 1, "only the first entry is pushed")

	assert.Equal(t, 2, f.front.Count(notification.TypePlaylist))
	assert.Equal(t, "Alice", e1.OwnerName)
	assert.Equal(t, f.clock.Now(), e1.DateCreated)
}

func TestEnqueue_NoPushWhenPlayNextDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.m.UpdateKaraoke(ctx, manager, karaoke.Patch{PlayerPlayNextSong: boolPtr(false)})
	require.NoError(t, err)

	f.enqueue(t, alice, "five")
	assert.Empty(t, f.player.Events())
}

func TestEnqueue_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		yaml    string
		setup   func(t *testing.T, f *fixture)
		user    user.User
		song    string
		wantErr error
		code    string
	}{
		{
			name:    "not a playlist user",
			user:    user.User{ID: "guest"},
			song:    "five",
			wantErr: ErrForbidden,
		},
		{
			name: "unknown song",
			user: alice,
			song: "missing",
			code: "not_found",
		},
		{
			name: "not ongoing",
			setup: func(t *testing.T, f *fixture) {
				_, err := f.m.UpdateKaraoke(ctx, manager, karaoke.Patch{Ongoing: boolPtr(false)})
				require.NoError(t, err)
			},
			user:    manager,
			song:    "five",
			wantErr: ErrNotOngoing,
		},
		{
			name: "adding disabled",
			setup: func(t *testing.T, f *fixture) {
				_, err := f.m.UpdateKaraoke(ctx, manager, karaoke.Patch{CanAddToPlaylist: boolPtr(false)})
				require.NoError(t, err)
			},
			user:    alice,
			song:    "five",
			wantErr: ErrAddDisabled,
		},
		{
			name: "playlist full",
			yaml: "playlist: {size_limit: 2}\n",
			setup: func(t *testing.T, f *fixture) {
				f.enqueue(t, manager, "five")
				f.enqueue(t, manager, "five")
			},
			user:    alice,
			song:    "five",
			wantErr: ErrPlaylistFull,
		},
		{
			name:    "disabled song for a user",
			user:    alice,
			song:    "banned",
			wantErr: ErrSongDisabled,
		},
		{
			name:    "disabled song for a playlist manager only",
			user:    manager,
			song:    "banned",
			wantErr: ErrSongDisabled,
		},
		{
			name: "optional filter",
			yaml: `
filters:
  user_pending_filter:
    enabled: true
`,
			setup: func(t *testing.T, f *fixture) {
				f.enqueue(t, alice, "five")
			},
			user: alice,
			song: "ten",
			code: "user_pending",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.yaml)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			before := queueIDs(t, f)

			_, err := f.m.Enqueue(ctx, tt.user, tt.song, false)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			if tt.code != "" {
				assert.Equal(t, tt.code, Code(err))
			}
			assert.Equal(t, before, queueIDs(t, f), "a rejected request changes nothing")
		})
	}
}

func TestEnqueue_ManagersBypass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.m.UpdateKaraoke(ctx, manager, karaoke.Patch{CanAddToPlaylist: boolPtr(false)})
	require.NoError(t, err)

	_, err = f.m.Enqueue(ctx, manager, "five", false)
	assert.NoError(t, err)
	_, err = f.m.Enqueue(ctx, root, "banned", true)
	assert.NoError(t, err)

	both := user.User{ID: "both", PlaylistLevel: user.LevelManager, LibraryLevel: user.LevelManager}
	_, err = f.m.Enqueue(ctx, both, "banned", false)
	assert.NoError(t, err)
}

func TestEnqueue_StopDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stop := f.clock.Now().Add(8 * time.Second)
	_, err := f.m.UpdateKaraoke(ctx, manager, karaoke.Patch{SetDateStop: true, DateStop: &stop})
	require.NoError(t, err)

	_, err = f.m.Enqueue(ctx, alice, "five", false)
	require.NoError(t, err)

	_, err = f.m.Enqueue(ctx, alice, "ten", false)
	assert.True(t, errors.Is(err, ErrPastStopTime), "got %v", err)
	assert.Equal(t, "past_stop_time", Code(err))

	_, err = f.m.Enqueue(ctx, manager, "ten", false)
	assert.NoError(t, err)
}

func TestEnqueue_StopDateCountsPlayerRemainingTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.enqueue(t, alice, "ten")
	f.report(t, player.EventStartedTransition, e.ID, 0)
	f.report(t, player.EventStartedSong, e.ID, 0)
	f.clock.Advance(4 * time.Second)

	// 6s left on the playing song, plus 5s.
	stop := f.clock.Now().Add(10 * time.Second)
	_, err := f.m.UpdateKaraoke(ctx, manager, karaoke.Patch{SetDateStop: true, DateStop: &stop})
	require.NoError(t, err)

	_, err = f.m.Enqueue(ctx, alice, "five", false)
	assert.True(t, errors.Is(err, ErrPastStopTime), "got %v", err)

	f.clock.Advance(2 * time.Second)
	stop = f.clock.Now().Add(9 * time.Second)
	_, err = f.m.UpdateKaraoke(ctx, manager, karaoke.Patch{SetDateStop: true, DateStop: &stop})
	require.NoError(t, err)
	_, err = f.m.Enqueue(ctx, alice, "five", false)
	assert.NoError(t, err)
}

func TestNext_Ordering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e1 := f.enqueue(t, alice, "five")
	e2 := f.enqueue(t, alice, "ten")

	next, err := f.m.Next(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, e1.ID, next.ID)

	f.report(t, player.EventStartedTransition, e1.ID, 0)
	f.report(t, player.EventStartedSong, e1.ID, 0)
	f.report(t, player.EventFinished, e1.ID, 0)

	next, err = f.m.Next(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, e2.ID, next.ID)
	ev := f.lastPlayerEvent(t)
	assert.Equal(t, notification.TypePlaylistEntry, ev.Type)
	assert.Equal(t, e2.ID, ev.Data.(playlist.Entry).ID)

	f.report(t, player.EventStartedTransition, e2.ID, 0)
	f.report(t, player.EventStartedSong, e2.ID, 0)
	f.report(t, player.EventFinished, e2.ID, 0)

	next, err = f.m.Next(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, notification.TypeIdle, f.lastPlayerEvent(t).Type)
}

func TestNext_Excluding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e1 := f.enqueue(t, alice, "five")
	e2 := f.enqueue(t, alice, "ten")

	next, err := f.m.Next(ctx, e1.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, e2.ID, next.ID)

	f.report(t, player.EventStartedTransition, e1.ID, 0)
	next, err = f.m.Next(ctx, e1.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, e2.ID, next.ID, "the playing entry is skipped when excluded")

	next, err = f.m.Next(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, e1.ID, next.ID, "the playing entry comes first")

	f.report(t, player.EventFinished, e1.ID, 0)
	next, err = f.m.Next(ctx, e1.ID)
	require.NoError(t, err)
	assert.Nil(t, next, "nothing follows a played entry")

	next, err = f.m.Next(ctx, e2.ID)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestSchedule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := f.clock.Now()

	e1 := f.enqueue(t, alice, "five")
	e2 := f.enqueue(t, alice, "ten")

	sched, err := f.m.Schedule(ctx)
	require.NoError(t, err)
	require.Len(t, sched.Entries, 2)
	assert.Equal(t, now, sched.Entries[0].DatePlay)
	assert.Equal(t, now.Add(5*time.Second), sched.Entries[1].DatePlay)
	assert.Equal(t, now.Add(15*time.Second), sched.DateEnd)

	f.report(t, player.EventStartedTransition, e1.ID, 0)
	f.report(t, player.EventStartedSong, e1.ID, 0)
	f.clock.Advance(2 * time.Second)

	sched, err = f.m.Schedule(ctx)
	require.NoError(t, err)
	require.Len(t, sched.Entries, 1)
	assert.Equal(t, e2.ID, sched.Entries[0].ID)
	assert.Equal(t, f.clock.Now().Add(3*time.Second), sched.Entries[0].DatePlay)

	playing, err := f.m.Playing(ctx)
	require.NoError(t, err)
	require.NotNil(t, playing)
	assert.Equal(t, e1.ID, playing.ID)
}

func TestPlayed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e1 := f.enqueue(t, alice, "five")
	e2 := f.enqueue(t, alice, "ten")

	f.report(t, player.EventStartedTransition, e1.ID, 0)
	f.report(t, player.EventFinished, e1.ID, 0)
	f.clock.Advance(time.Second)
	f.report(t, player.EventCouldNotPlay, e2.ID, 0)

	played, err := f.m.Played(ctx)
	require.NoError(t, err)
	require.Len(t, played, 2)
	assert.Equal(t, e1.ID, played[0].ID)
	assert.Equal(t, e2.ID, played[1].ID)
}

func TestReorder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.m.UpdateKaraoke(ctx, manager, karaoke.Patch{PlayerPlayNextSong: boolPtr(false)})
	require.NoError(t, err)

	a := f.enqueue(t, alice, "five")
	b := f.enqueue(t, alice, "five")
	c := f.enqueue(t, bob, "five")

	require.NoError(t, f.m.Reorder(ctx, manager, c.ID, a.ID, true))
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, queueIDs(t, f))

	require.NoError(t, f.m.Reorder(ctx, manager, c.ID, a.ID, false))
	assert.Equal(t, []string{a.ID, c.ID, b.ID}, queueIDs(t, f))

	require.NoError(t, f.m.Reorder(ctx, manager, a.ID, b.ID, false))
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, queueIDs(t, f))

	assert.Equal(t, 6, f.front.Count(notification.TypePlaylist), "one event per enqueue and per move")
}

func TestReorder_Renumbers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	base := f.clock.Now()
	for i, pos := range []float64{1, 1 + 1e-12, 5} {
		require.NoError(t, f.store.InsertEntry(ctx, playlist.Entry{
			ID:          []string{"x", "y", "z"}[i],
			Song:        songs[0],
			OwnerID:     alice.ID,
			DateCreated: base,
			Position:    pos,
		}))
	}

	require.NoError(t, f.m.Reorder(ctx, manager, "z", "x", false))
	assert.Equal(t, []string{"x", "z", "y"}, queueIDs(t, f))
	assert.Equal(t, 2.0, f.entry(t, "z").Position)
}

func TestReorder_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.enqueue(t, alice, "five")
	b := f.enqueue(t, alice, "five")
	c := f.enqueue(t, alice, "five")
	f.report(t, player.EventStartedTransition, a.ID, 0)

	tests := []struct {
		name    string
		user    user.User
		id, ref string
		wantErr error
	}{
		{"not a manager", alice, c.ID, b.ID, ErrForbidden},
		{"playing entry", manager, a.ID, b.ID, ErrNotFound},
		{"relative to playing entry", manager, c.ID, a.ID, ErrNotFound},
		{"unknown entry", manager, "nope", b.ID, ErrNotFound},
		{"same entry", manager, b.ID, b.ID, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.m.Reorder(ctx, tt.user, tt.id, tt.ref, true)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
	assert.Equal(t, []string{b.ID, c.ID}, queueIDs(t, f))
}

func TestReorder_PlayerStartsEntryMeanwhile(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		move    func(a, b, c playlist.Entry) (string, string)
		wantErr bool
	}{
		{"moved entry starts", func(a, b, c playlist.Entry) (string, string) { return a.ID, c.ID }, true},
		{"reference entry starts", func(a, b, c playlist.Entry) (string, string) { return c.ID, a.ID }, true},
		{"other entry starts", func(a, b, c playlist.Entry) (string, string) { return c.ID, b.ID }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.m.UpdateKaraoke(ctx, manager, karaoke.Patch{PlayerPlayNextSong: boolPtr(false)})
			require.NoError(t, err)
			a := f.enqueue(t, alice, "five")
			b := f.enqueue(t, alice, "five")
			c := f.enqueue(t, bob, "five")

			f.hooks.onNextTx(func() { f.report(t, player.EventStartedTransition, a.ID, 0) })
			id, ref := tt.move(a, b, c)
			err = f.m.Reorder(ctx, manager, id, ref, true)
			if tt.wantErr {
				assert.Equal(t, Code(ErrNotFound), Code(err), "got %v", err)
			} else {
				require.NoError(t, err)
			}

			playing, err := f.m.Playing(ctx)
			require.NoError(t, err)
			require.NotNil(t, playing, "the started entry must stay playing")
			assert.Equal(t, a.ID, playing.ID)
			assert.NotNil(t, f.entry(t, a.ID).DatePlayed)
			assert.NotContains(t, queueIDs(t, f), a.ID)

			f.report(t, player.EventFinished, a.ID, 0)
			assert.True(t, f.entry(t, a.ID).WasPlayed)
		})
	}
}

func TestReorder_RenumberSkipsStartedEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.m.UpdateKaraoke(ctx, manager, karaoke.Patch{PlayerPlayNextSong: boolPtr(false)})
	require.NoError(t, err)
	base := f.clock.Now()
	for i, pos := range []float64{1, 1 + 1e-12, 3, 5} {
		require.NoError(t, f.store.InsertEntry(ctx, playlist.Entry{
			ID:          []string{"x", "w", "y", "z"}[i],
			Song:        songs[0],
			OwnerID:     alice.ID,
			DateCreated: base,
			Position:    pos,
		}))
	}

	f.hooks.onNextTx(func() { f.report(t, player.EventStartedTransition, "y", 0) })
	require.NoError(t, f.m.Reorder(ctx, manager, "z", "x", false))

	assert.Equal(t, []string{"x", "z", "w"}, queueIDs(t, f))
	assert.Equal(t, 3.0, f.entry(t, "w").Position)
	y := f.entry(t, "y")
	assert.Equal(t, playlist.StatePlaying, y.State())
	assert.Equal(t, 3.0, y.Position)
}

func TestDelete_PlayerStartsEntryMeanwhile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.m.UpdateKaraoke(ctx, manager, karaoke.Patch{PlayerPlayNextSong: boolPtr(false)})
	require.NoError(t, err)
	a := f.enqueue(t, alice, "five")

	f.hooks.onNextTx(func() { f.report(t, player.EventStartedTransition, a.ID, 0) })
	err = f.m.Delete(ctx, alice, a.ID)
	assert.Equal(t, Code(ErrNotFound), Code(err), "deleting the playing entry must be refused, got %v", err)

	assert.Equal(t, playlist.StatePlaying, f.entry(t, a.ID).State())
	f.report(t, player.EventFinished, a.ID, 0)
	assert.True(t, f.entry(t, a.ID).WasPlayed)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.enqueue(t, alice, "five")
	b := f.enqueue(t, alice, "five")
	c := f.enqueue(t, bob, "five")
	f.report(t, player.EventStartedTransition, a.ID, 0)

	tests := []struct {
		name    string
		user    user.User
		id      string
		wantErr error
	}{
		{"other user", bob, b.ID, ErrForbidden},
		{"playing entry", manager, a.ID, ErrNotFound},
		{"unknown entry", manager, "nope", ErrNotFound},
		{"owner", alice, b.ID, nil},
		{"manager", manager, c.ID, nil},
		{"already deleted", alice, b.ID, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.m.Delete(ctx, tt.user, tt.id)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, Code(tt.wantErr), Code(err), "got %v", err)
		})
	}
	assert.Empty(t, queueIDs(t, f))
}
