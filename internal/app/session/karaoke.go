package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/app/cache"
	"github.com/osa030/karabox/internal/app/notification"
	"github.com/osa030/karabox/internal/app/store"
	"github.com/osa030/karabox/internal/domain/karaoke"
	"github.com/osa030/karabox/internal/domain/player"
	"github.com/osa030/karabox/internal/domain/user"
	"github.com/osa030/karabox/internal/infra/metrics"
)

// Karaoke returns the session flags.
func (m *Manager) Karaoke(ctx context.Context) (karaoke.Karaoke, error) {
	k, err := m.store.GetKaraoke(ctx)
	if err != nil {
		return karaoke.Karaoke{}, errors.Wrap(err, "failed to get karaoke")
	}
	return k, nil
}

// UpdateKaraoke applies a patch to the session flags. Only playlist
// managers may change them.
//
// Stopping the session empties the playlist, clears the player errors and
// resets the player in one go. Setting the stop date replaces the job
// clearing it.
func (m *Manager) UpdateKaraoke(ctx context.Context, u user.User, p karaoke.Patch) (karaoke.Karaoke, error) {
	if !u.IsPlaylistManager() {
		return karaoke.Karaoke{}, ErrForbidden
	}

	m.karaokeMu.Lock()
	defer m.karaokeMu.Unlock()

	old, err := m.store.GetKaraoke(ctx)
	if err != nil {
		return karaoke.Karaoke{}, errors.Wrap(err, "failed to get karaoke")
	}
	k := p.Apply(old)

	if p.Halts(old) {
		if err := m.halt(ctx, k); err != nil {
			return karaoke.Karaoke{}, err
		}
	} else if err := m.store.SaveKaraoke(ctx, k); err != nil {
		return karaoke.Karaoke{}, errors.Wrap(err, "failed to save karaoke")
	}

	if p.SetDateStop {
		if err := m.scheduleDateStop(ctx, k.DateStop); err != nil {
			zlog.Error().Msgf("failed to schedule stop date: %v", err)
		}
	}

	zlog.Info().Msgf("karaoke updated: ongoing=%t can_add=%t play_next=%t date_stop=%v user=%s",
		k.Ongoing, k.CanAddToPlaylist, k.PlayerPlayNextSong, k.DateStop, u.ID)
	m.emit(outgoing{notification.TopicFront, notification.TypeKaraoke, k})

	resumed := !(old.Ongoing && old.PlayerPlayNextSong) && k.Ongoing && k.PlayerPlayNextSong
	if resumed {
		if err := m.pushNextIfIdle(ctx); err != nil {
			zlog.Error().Msgf("failed to push next entry: %v", err)
		}
	}
	return k, nil
}

// halt stops the session: the playlist and the player errors are deleted
// together with saving k, then the player is reset and told to go idle.
func (m *Manager) halt(ctx context.Context, k karaoke.Karaoke) error {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	err := m.mutatePlayer(ctx, func(st player.Status) (*transition, error) {
		if err := m.cache.Delete(ctx, keyPlayerCommand); err != nil {
			return nil, errors.Wrap(err, "failed to clear player command")
		}
		err := m.store.WithTx(ctx, func(q store.Queries) error {
			if err := q.DeleteAllEntries(ctx); err != nil {
				return errors.Wrap(err, "failed to clear playlist")
			}
			if err := q.DeleteAllPlayerErrors(ctx); err != nil {
				return errors.Wrap(err, "failed to clear player errors")
			}
			return errors.Wrap(q.SaveKaraoke(ctx, k), "failed to save karaoke")
		})
		if err != nil {
			return nil, err
		}
		st.Reset(m.now())
		return &transition{
			status: st,
			events: []outgoing{
				{notification.TopicPlayer, notification.TypeIdle, nil},
				playlistEvent(ActionCleared, nil),
			},
		}, nil
	})
	if err != nil {
		return err
	}
	metrics.QueueLength.Set(0)
	zlog.Info().Msg("karaoke stopped, playlist cleared")
	return nil
}

// pushNextIfIdle sends the next entry to an idle player.
func (m *Manager) pushNextIfIdle(ctx context.Context) error {
	st, err := m.loadStatus(ctx)
	if err != nil {
		return err
	}
	if !st.IsIdle() {
		return nil
	}
	next, err := m.Next(ctx, "")
	if err != nil || next == nil {
		return err
	}
	m.emit(outgoing{notification.TopicPlayer, notification.TypePlaylistEntry, *next})
	return nil
}

// scheduleDateStop cancels the pending stop date job and schedules a new
// one when date is set. The job handle is kept in the cache.
func (m *Manager) scheduleDateStop(ctx context.Context, date *time.Time) error {
	var handle string
	err := m.cache.Get(ctx, keyDateStopJob, &handle)
	switch {
	case err == nil:
		if !m.scheduler.Cancel(handle) {
			zlog.Debug().Msgf("stop date job already gone: job=%s", handle)
		}
	case !errors.Is(err, cache.ErrMiss):
		zlog.Warn().Msgf("failed to read stop date job: %v", err)
	}

	if date == nil {
		return errors.Wrap(m.cache.Delete(ctx, keyDateStopJob), "failed to delete stop date job")
	}
	handle = m.scheduler.At(*date, func() {
		m.clearDateStop(context.Background())
	})
	zlog.Debug().Msgf("stop date job scheduled: job=%s at=%v", handle, *date)
	return errors.Wrap(m.cache.Set(ctx, keyDateStopJob, handle), "failed to save stop date job")
}

// clearDateStop runs when the stop date is reached.
func (m *Manager) clearDateStop(ctx context.Context) {
	m.karaokeMu.Lock()
	defer m.karaokeMu.Unlock()

	if _, err := m.clearDateStopLocked(ctx); err != nil {
		zlog.Error().Msgf("failed to clear stop date: %v", err)
	}
}

// clearDateStopLocked disables adding to the playlist and clears the stop
// date, provided it is reached. The caller holds karaokeMu.
func (m *Manager) clearDateStopLocked(ctx context.Context) (karaoke.Karaoke, error) {
	k, err := m.store.GetKaraoke(ctx)
	if err != nil {
		return karaoke.Karaoke{}, errors.Wrap(err, "failed to get karaoke")
	}
	if !k.DateStopExpired(m.now()) {
		zlog.Error().Msgf("stop date clear called before the stop date: date_stop=%v", k.DateStop)
		return k, nil
	}

	k.CanAddToPlaylist = false
	k.DateStop = nil
	if err := m.store.SaveKaraoke(ctx, k); err != nil {
		return karaoke.Karaoke{}, errors.Wrap(err, "failed to save karaoke")
	}
	if err := m.cache.Delete(ctx, keyDateStopJob); err != nil {
		zlog.Warn().Msgf("failed to delete stop date job: %v", err)
	}
	zlog.Info().Msg("stop date reached, adding to the playlist is disabled")
	m.emit(outgoing{notification.TopicFront, notification.TypeKaraoke, k})
	return k, nil
}
