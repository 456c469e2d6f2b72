package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/app/filter"
	"github.com/osa030/karabox/internal/app/notification"
	"github.com/osa030/karabox/internal/app/store"
	"github.com/osa030/karabox/internal/domain/player"
	"github.com/osa030/karabox/internal/domain/playlist"
	"github.com/osa030/karabox/internal/domain/user"
	"github.com/osa030/karabox/internal/infra/metrics"
)

// minPositionGap is the smallest gap between two order keys before the
// queue gets renumbered.
const minPositionGap = 1e-9

// Playlist change actions sent to front-end observers.
const (
	ActionAdded    = "added"
	ActionRemoved  = "removed"
	ActionMoved    = "moved"
	ActionCleared  = "cleared"
	ActionStarted  = "started"
	ActionFinished = "finished"
)

// PlaylistChange describes a change of the playlist.
type PlaylistChange struct {
	Action string          `json:"action"`
	Entry  *playlist.Entry `json:"entry,omitempty"`
}

func playlistEvent(action string, e *playlist.Entry) outgoing {
	return outgoing{notification.TopicFront, notification.TypePlaylist, PlaylistChange{Action: action, Entry: e}}
}

// Enqueue adds a song at the end of the playlist on behalf of u.
// The request goes through the filter chain first; a refused request
// returns the rejection of the first filter that refused it.
func (m *Manager) Enqueue(ctx context.Context, u user.User, songID string, useInstrumental bool) (playlist.Entry, error) {
	entry, err := m.enqueue(ctx, u, songID, useInstrumental)
	metrics.EnqueueRequests.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		if code := Code(err); code != "" {
			zlog.Info().Msgf("enqueue rejected: user=%s song=%s code=%s", u.ID, songID, code)
		} else {
			zlog.Error().Msgf("enqueue failed: user=%s song=%s: %v", u.ID, songID, err)
		}
	}
	return entry, err
}

func (m *Manager) enqueue(ctx context.Context, u user.User, songID string, useInstrumental bool) (playlist.Entry, error) {
	if !u.IsPlaylistUser() {
		return playlist.Entry{}, ErrForbidden
	}
	song, err := m.catalog.GetSong(ctx, songID)
	if err != nil {
		return playlist.Entry{}, errors.Wrapf(err, "song=%s", songID)
	}

	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	now := m.now()
	k, err := m.store.GetKaraoke(ctx)
	if err != nil {
		return playlist.Entry{}, errors.Wrap(err, "failed to get karaoke")
	}
	queued, err := m.store.ListQueued(ctx)
	if err != nil {
		return playlist.Entry{}, errors.Wrap(err, "failed to list queue")
	}
	playing, err := m.playingIn(ctx, m.store)
	if err != nil {
		return playlist.Entry{}, err
	}
	status, err := m.PlayerStatus(ctx)
	if err != nil {
		return playlist.Entry{}, err
	}

	pending := queued
	if playing != nil {
		pending = append([]playlist.Entry{*playing}, queued...)
	}
	req := filter.EntryRequest{
		User:     u,
		Song:     song,
		Karaoke:  k,
		Pending:  pending,
		QueueEnd: queueStart(now, status, playing).Add(playlist.TotalDuration(queued)),
		Now:      now,
	}
	if res := m.filterChain.Execute(ctx, req); !res.Accepted {
		return playlist.Entry{}, rejection(res.Code)
	}

	top, err := m.store.MaxPosition(ctx)
	if err != nil {
		return playlist.Entry{}, errors.Wrap(err, "failed to get queue end")
	}
	entry := playlist.Entry{
		ID:              uuid.New().String(),
		Song:            song,
		OwnerID:         u.ID,
		OwnerName:       u.Name,
		UseInstrumental: useInstrumental,
		DateCreated:     now,
		Position:        top + 1,
	}
	if err := m.store.InsertEntry(ctx, entry); err != nil {
		return playlist.Entry{}, errors.Wrap(err, "failed to insert entry")
	}
	metrics.QueueLength.Set(float64(len(pending) + 1))
	zlog.Info().Msgf("enqueued: entry=%s song=%s user=%s", entry.ID, song.ID, u.ID)

	events := []outgoing{playlistEvent(ActionAdded, &entry)}
	if len(queued) == 0 && playing == nil && status.IsIdle() && k.Ongoing && k.PlayerPlayNextSong {
		events = append(events, outgoing{notification.TopicPlayer, notification.TypePlaylistEntry, entry})
	}
	m.emit(events...)
	return entry, nil
}

// queueStart returns when the first queued entry is expected to play.
func queueStart(now time.Time, status player.Status, playing *playlist.Entry) time.Time {
	if playing == nil {
		return now
	}
	if status.EntryID != playing.ID {
		return now.Add(playing.Song.Duration)
	}
	return now.Add(status.Remaining(playing.Song.Duration))
}

// Next returns the entry to play next: the first entry not played, the
// playing one first, then the queue in manual order. excludingID skips an
// entry; when that entry was already played there is nothing after it and
// nil is returned.
func (m *Manager) Next(ctx context.Context, excludingID string) (*playlist.Entry, error) {
	if excludingID != "" {
		excluded, err := m.store.GetEntry(ctx, excludingID)
		switch {
		case err == nil && excluded.WasPlayed:
			return nil, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, errors.Wrap(err, "failed to get excluded entry")
		}
	}

	playing, err := m.playingIn(ctx, m.store)
	if err != nil {
		return nil, err
	}
	if playing != nil && playing.ID != excludingID {
		return playing, nil
	}
	queued, err := m.store.ListQueued(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queue")
	}
	for i := range queued {
		if queued[i].ID != excludingID {
			return &queued[i], nil
		}
	}
	return nil, nil
}

// Playing returns the entry currently played, or nil.
func (m *Manager) Playing(ctx context.Context) (*playlist.Entry, error) {
	return m.playingIn(ctx, m.store)
}

// Schedule returns the queue with the projected play time of each entry.
func (m *Manager) Schedule(ctx context.Context) (playlist.Schedule, error) {
	queued, err := m.store.ListQueued(ctx)
	if err != nil {
		return playlist.Schedule{}, errors.Wrap(err, "failed to list queue")
	}
	playing, err := m.playingIn(ctx, m.store)
	if err != nil {
		return playlist.Schedule{}, err
	}
	status, err := m.PlayerStatus(ctx)
	if err != nil {
		return playlist.Schedule{}, err
	}
	return playlist.BuildSchedule(queueStart(m.now(), status, playing), queued), nil
}

// Played returns the played entries, oldest first.
func (m *Manager) Played(ctx context.Context) ([]playlist.Entry, error) {
	entries, err := m.store.ListPlayed(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list played entries")
	}
	return entries, nil
}

// Reorder moves a queued entry right before or right after another queued
// entry. Only playlist managers may reorder.
// The queue is read and rewritten in one transaction, and only queued rows
// are repositioned: an entry the player starts meanwhile fails the move
// with ErrNotFound instead of being put back in the queue.
func (m *Manager) Reorder(ctx context.Context, u user.User, id, refID string, before bool) error {
	if id == refID {
		return errors.Wrap(ErrInvalidRequest, "cannot move an entry relative to itself")
	}

	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	var moved playlist.Entry
	err := m.store.WithTx(ctx, func(q store.Queries) error {
		queued, err := q.ListQueued(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to list queue")
		}

		found := false
		others := make([]playlist.Entry, 0, len(queued))
		for _, e := range queued {
			if e.ID == id {
				moved, found = e, true
				continue
			}
			others = append(others, e)
		}
		refIdx := -1
		for i := range others {
			if others[i].ID == refID {
				refIdx = i
			}
		}
		if !found || refIdx < 0 {
			return errors.Wrapf(ErrNotFound, "entry=%s relative_to=%s", id, refID)
		}
		if !u.IsPlaylistManager() {
			return ErrForbidden
		}

		insertAt := refIdx + 1
		if before {
			insertAt = refIdx
		}
		pos, ok := positionAt(others, insertAt)
		if !ok {
			pos, err = renumber(ctx, q, others, insertAt, moved.ID)
			if err != nil {
				return err
			}
		} else if err := q.UpdatePosition(ctx, moved.ID, pos); err != nil {
			return errors.Wrap(err, "failed to move entry")
		}
		moved.Position = pos
		return nil
	})
	if err != nil {
		return err
	}

	zlog.Info().Msgf("entry moved: entry=%s relative_to=%s before=%t user=%s", id, refID, before, u.ID)
	m.emit(playlistEvent(ActionMoved, &moved))
	return nil
}

// positionAt returns an order key placing an entry at index i of entries.
// It reports false when the neighbours are too close to fit one in.
func positionAt(entries []playlist.Entry, i int) (float64, bool) {
	switch {
	case len(entries) == 0:
		return 1, true
	case i <= 0:
		return entries[0].Position - 1, true
	case i >= len(entries):
		return entries[len(entries)-1].Position + 1, true
	}
	lo, hi := entries[i-1].Position, entries[i].Position
	if hi-lo < minPositionGap {
		return 0, false
	}
	return lo + (hi-lo)/2, true
}

// renumber rewrites every order key of the queue, with the moved entry
// inserted at index i of others, and returns the moved entry's new key.
func renumber(ctx context.Context, q store.Queries, others []playlist.Entry, i int, movedID string) (float64, error) {
	order := make([]string, 0, len(others)+1)
	for _, e := range others[:i] {
		order = append(order, e.ID)
	}
	order = append(order, movedID)
	for _, e := range others[i:] {
		order = append(order, e.ID)
	}

	zlog.Debug().Msgf("playlist: renumbering %d entries", len(order))
	for n, id := range order {
		if err := q.UpdatePosition(ctx, id, float64(n+1)); err != nil {
			return 0, errors.Wrap(err, "failed to renumber queue")
		}
	}
	return float64(i + 1), nil
}

// Delete removes a queued entry. Only its owner or a playlist manager may
// remove it. An entry started by the player is no longer queued and cannot
// be removed.
func (m *Manager) Delete(ctx context.Context, u user.User, id string) error {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	var e playlist.Entry
	err := m.store.WithTx(ctx, func(q store.Queries) error {
		var err error
		e, err = q.GetEntry(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "entry=%s", id)
		}
		if e.State() != playlist.StateQueued {
			return errors.Wrapf(ErrNotFound, "entry %s is %s", id, e.State())
		}
		if e.OwnerID != u.ID && !u.IsPlaylistManager() {
			return ErrForbidden
		}
		return q.DeleteQueued(ctx, id)
	})
	if err != nil {
		return err
	}

	if n, err := m.store.CountPending(ctx); err == nil {
		metrics.QueueLength.Set(float64(n))
	}
	zlog.Info().Msgf("entry deleted: entry=%s user=%s", id, u.ID)
	m.emit(playlistEvent(ActionRemoved, &e))
	return nil
}
