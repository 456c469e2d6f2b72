package session

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/app/cache"
	"github.com/osa030/karabox/internal/app/notification"
	"github.com/osa030/karabox/internal/app/store"
	"github.com/osa030/karabox/internal/domain/player"
	"github.com/osa030/karabox/internal/domain/playlist"
	"github.com/osa030/karabox/internal/domain/user"
	"github.com/osa030/karabox/internal/infra/metrics"
)

// defaultErrorMessage is recorded when the player gives no reason.
const defaultErrorMessage = "could not play"

// transition is the outcome of a player state change.
type transition struct {
	status  player.Status
	events  []outgoing
	advance bool // Push the next entry (or idle) to the player
}

// mutatePlayer runs a read-modify-write of the player state under the
// player lock. Events are broadcast after the state is saved and the lock
// released, in the order the changes were committed.
//
// fn may commit to the store. When the new state cannot be cached after
// that, the cached state is dropped so that it reads as idle instead of
// contradicting the store; the player resyncs by reporting
// started_transition for the entry it plays. The committed events are
// still broadcast.
func (m *Manager) mutatePlayer(ctx context.Context, fn func(st player.Status) (*transition, error)) error {
	lockCtx := ctx
	if wait := m.config.LockWait(); wait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	unlock, err := m.cache.Lock(lockCtx, lockPlayer)
	if err != nil {
		return errors.Wrap(err, "failed to lock player state")
	}
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	st, err := m.loadStatus(ctx)
	if err != nil {
		return err
	}
	tr, err := fn(st)
	if err != nil {
		return err
	}
	saveErr := m.cache.Set(ctx, keyPlayerStatus, tr.status)
	if saveErr != nil {
		zlog.Error().Msgf("player: failed to save player state, dropping it: %v", saveErr)
		if err := m.cache.Delete(ctx, keyPlayerStatus); err != nil {
			zlog.Error().Msgf("player: failed to drop player state: %v", err)
		}
	}

	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	unlock()
	locked = false

	events := make([]outgoing, 0, len(tr.events)+2)
	if saveErr == nil {
		events = append(events, outgoing{notification.TopicFront, notification.TypePlayerStatus, tr.status})
	}
	events = append(events, tr.events...)
	if tr.advance && saveErr == nil {
		events = append(events, m.nextFor(ctx))
	}
	m.broadcast(events)
	return errors.Wrap(saveErr, "failed to save player state")
}

// loadStatus reads the stored player state. A missing state is idle.
func (m *Manager) loadStatus(ctx context.Context) (player.Status, error) {
	var st player.Status
	err := m.cache.Get(ctx, keyPlayerStatus, &st)
	if errors.Is(err, cache.ErrMiss) {
		return player.Idle(m.now()), nil
	}
	if err != nil {
		return player.Status{}, errors.Wrap(err, "failed to load player state")
	}
	return st, nil
}

// PlayerStatus returns the player state with the timing computed live.
func (m *Manager) PlayerStatus(ctx context.Context) (player.Status, error) {
	st, err := m.loadStatus(ctx)
	if err != nil {
		return player.Status{}, err
	}
	return st.Live(m.now()), nil
}

// statusHandler applies one player event to the current state.
type statusHandler func(m *Manager, ctx context.Context, st player.Status, r player.Report) (*transition, error)

var statusHandlers = map[player.Event]statusHandler{
	player.EventStartedTransition: (*Manager).onStartedTransition,
	player.EventStartedSong:       (*Manager).onStartedSong,
	player.EventPaused:            (*Manager).onPaused,
	player.EventResumed:           (*Manager).onResumed,
	player.EventUpdatedTiming:     (*Manager).onUpdatedTiming,
	player.EventFinished:          (*Manager).onFinished,
	player.EventCouldNotPlay:      (*Manager).onCouldNotPlay,
}

// ReportStatus applies a status report of the player and returns the new
// player state. The pending command, if any, is consumed.
func (m *Manager) ReportStatus(ctx context.Context, u user.User, r player.Report) (player.Status, error) {
	var result player.Status
	err := m.reportStatus(ctx, u, r, &result)

	metrics.PlayerEvents.WithLabelValues(string(r.Event), resultLabel(err)).Inc()
	switch {
	case err == nil:
		zlog.Debug().Msgf("player: %s: entry=%s timing=%v", r.Event, r.EntryID, r.Timing)
	case IsInvariantViolation(err):
		zlog.Error().Msgf("player: %s rejected, store is inconsistent: %+v", r.Event, err)
	case Code(err) != "":
		zlog.Warn().Msgf("player: %s rejected: entry=%s code=%s: %v", r.Event, r.EntryID, Code(err), err)
	default:
		zlog.Error().Msgf("player: %s failed: entry=%s: %v", r.Event, r.EntryID, err)
	}
	return result, err
}

func (m *Manager) reportStatus(ctx context.Context, u user.User, r player.Report, result *player.Status) error {
	if !u.IsPlayer {
		return ErrForbidden
	}
	handler, ok := statusHandlers[r.Event]
	if !ok {
		return errors.Wrapf(ErrUnknownEvent, "event=%q", r.Event)
	}

	return m.mutatePlayer(ctx, func(st player.Status) (*transition, error) {
		if st.IsIdle() && !r.Event.AllowedWhenIdle() {
			return nil, errors.Wrapf(ErrIncoherentEvent, "player is idle, got %s", r.Event)
		}
		// The command is taken before the handler commits anything and put
		// back if the report is refused.
		cmd, err := m.takeCommand(ctx)
		if err != nil {
			return nil, err
		}
		tr, err := handler(m, ctx, st, r)
		if err != nil {
			m.restoreCommand(ctx, cmd)
			return nil, err
		}
		*result = tr.status
		return tr, nil
	})
}

// takeCommand removes the pending command and returns it, or nil.
func (m *Manager) takeCommand(ctx context.Context) (*player.Command, error) {
	cmd, err := m.PendingCommand(ctx)
	if err != nil || cmd == nil {
		return nil, err
	}
	if err := m.cache.Delete(ctx, keyPlayerCommand); err != nil {
		return nil, errors.Wrap(err, "failed to clear player command")
	}
	return cmd, nil
}

func (m *Manager) restoreCommand(ctx context.Context, cmd *player.Command) {
	if cmd == nil {
		return
	}
	// A command issued meanwhile wins.
	if cur, err := m.PendingCommand(ctx); err != nil || cur != nil {
		return
	}
	if err := m.cache.Set(ctx, keyPlayerCommand, *cmd); err != nil {
		zlog.Error().Msgf("player: failed to restore pending command %s: %v", cmd.Kind, err)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return metrics.Result("")
	}
	if code := Code(err); code != "" {
		return metrics.Result(code)
	}
	return "error"
}

// requireCurrent checks that the report is about the entry the player
// state references.
func requireCurrent(st player.Status, r player.Report) error {
	if st.EntryID != r.EntryID {
		return errors.Wrapf(ErrIncoherentEvent, "player is on %q, got %s for %q", st.EntryID, r.Event, r.EntryID)
	}
	return nil
}

func (m *Manager) onStartedTransition(ctx context.Context, st player.Status, r player.Report) (*transition, error) {
	now := m.now()
	var entry playlist.Entry
	started := false

	err := m.store.WithTx(ctx, func(q store.Queries) error {
		playing, err := m.playingIn(ctx, q)
		if err != nil {
			return err
		}
		if playing != nil && playing.ID != r.EntryID {
			return errors.Wrapf(ErrAlreadyPlaying, "playing=%s requested=%s", playing.ID, r.EntryID)
		}
		if !st.IsIdle() && st.EntryID != r.EntryID {
			return errors.Wrapf(ErrIncoherentEvent, "player is on %q, got started_transition for %q", st.EntryID, r.EntryID)
		}

		entry, err = q.GetEntry(ctx, r.EntryID)
		if err != nil {
			return err
		}
		if entry.WasPlayed {
			return errors.Wrapf(ErrIncoherentEvent, "entry %s was already played", entry.ID)
		}
		if entry.DatePlayed != nil {
			return nil
		}
		entry.DatePlayed = &now
		started = true
		return q.UpdateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	tr := &transition{status: player.Status{EntryID: entry.ID, InTransition: true, Date: now}}
	if started {
		tr.events = append(tr.events, playlistEvent(ActionStarted, &entry))
	}
	return tr, nil
}

func (m *Manager) onStartedSong(ctx context.Context, st player.Status, r player.Report) (*transition, error) {
	if err := requireCurrent(st, r); err != nil {
		return nil, err
	}
	st.InTransition = false
	st.Paused = false
	st.Timing = r.Timing
	st.Date = m.now()
	return &transition{status: st}, nil
}

func (m *Manager) onPaused(ctx context.Context, st player.Status, r player.Report) (*transition, error) {
	if err := requireCurrent(st, r); err != nil {
		return nil, err
	}
	st.Paused = true
	st.Timing = r.Timing
	st.Date = m.now()
	return &transition{status: st}, nil
}

func (m *Manager) onResumed(ctx context.Context, st player.Status, r player.Report) (*transition, error) {
	if err := requireCurrent(st, r); err != nil {
		return nil, err
	}
	st.Paused = false
	st.Timing = r.Timing
	st.Date = m.now()
	return &transition{status: st}, nil
}

func (m *Manager) onUpdatedTiming(ctx context.Context, st player.Status, r player.Report) (*transition, error) {
	if err := requireCurrent(st, r); err != nil {
		return nil, err
	}
	if !st.InTransition {
		st.Timing = r.Timing
	}
	st.Date = m.now()
	return &transition{status: st}, nil
}

func (m *Manager) onFinished(ctx context.Context, st player.Status, r player.Report) (*transition, error) {
	if err := requireCurrent(st, r); err != nil {
		return nil, err
	}

	now := m.now()
	var entry playlist.Entry
	err := m.store.WithTx(ctx, func(q store.Queries) error {
		var err error
		entry, err = q.GetEntry(ctx, r.EntryID)
		if err != nil {
			return err
		}
		if entry.WasPlayed {
			return errors.Wrapf(ErrIncoherentEvent, "entry %s was already played", entry.ID)
		}
		entry.WasPlayed = true
		if entry.DatePlayed == nil {
			entry.DatePlayed = &now
		}
		return q.UpdateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	st.Reset(now)
	return &transition{
		status:  st,
		events:  []outgoing{playlistEvent(ActionFinished, &entry)},
		advance: true,
	}, nil
}

func (m *Manager) onCouldNotPlay(ctx context.Context, st player.Status, r player.Report) (*transition, error) {
	if !st.IsIdle() {
		if err := requireCurrent(st, r); err != nil {
			return nil, err
		}
	}

	msg := r.Message
	if msg == "" {
		msg = defaultErrorMessage
	}

	now := m.now()
	var entry playlist.Entry
	pe := playlist.PlayerError{
		ID:          uuid.New().String(),
		EntryID:     r.EntryID,
		Message:     msg,
		DateCreated: now,
	}
	err := m.store.WithTx(ctx, func(q store.Queries) error {
		playing, err := m.playingIn(ctx, q)
		if err != nil {
			return err
		}
		if playing != nil && playing.ID != r.EntryID {
			return errors.Wrapf(ErrAlreadyPlaying, "playing=%s failed=%s", playing.ID, r.EntryID)
		}
		entry, err = q.GetEntry(ctx, r.EntryID)
		if err != nil {
			return err
		}
		if entry.WasPlayed {
			return errors.Wrapf(ErrIncoherentEvent, "entry %s was already played", entry.ID)
		}
		if entry.DatePlayed == nil {
			entry.DatePlayed = &now
		}
		entry.WasPlayed = true
		if err := q.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		return q.InsertPlayerError(ctx, pe)
	})
	if err != nil {
		return nil, err
	}

	zlog.Warn().Msgf("player: could not play: entry=%s song=%s message=%s", entry.ID, entry.Song.ID, msg)
	st.Reset(now)
	return &transition{
		status: st,
		events: []outgoing{
			{notification.TopicFront, notification.TypePlayerError, pe},
			playlistEvent(ActionFinished, &entry),
		},
		advance: true,
	}, nil
}

// nextFor returns the event telling the player what to do now that it is
// idle: play the next entry when the session allows it, or stay idle.
func (m *Manager) nextFor(ctx context.Context) outgoing {
	idle := outgoing{notification.TopicPlayer, notification.TypeIdle, nil}

	k, err := m.store.GetKaraoke(ctx)
	if err != nil {
		zlog.Error().Msgf("player: failed to read karaoke, sending idle: %v", err)
		return idle
	}
	if !k.Ongoing || !k.PlayerPlayNextSong {
		return idle
	}
	next, err := m.Next(ctx, "")
	if err != nil {
		zlog.Error().Msgf("player: failed to get next entry, sending idle: %v", err)
		return idle
	}
	if next == nil {
		return idle
	}
	return outgoing{notification.TopicPlayer, notification.TypePlaylistEntry, *next}
}

// requeuePlaying puts the playing entry, if any, back in the queue.
func (m *Manager) requeuePlaying(ctx context.Context) error {
	return m.store.WithTx(ctx, func(q store.Queries) error {
		playing, err := m.playingIn(ctx, q)
		if err != nil || playing == nil {
			return err
		}
		zlog.Info().Msgf("player: requeuing interrupted entry: entry=%s", playing.ID)
		playing.DatePlayed = nil
		return q.UpdateEntry(ctx, *playing)
	})
}

// playingIn returns the entry currently played, or nil.
// More than one playing entry is an invariant violation.
func (m *Manager) playingIn(ctx context.Context, q store.Queries) (*playlist.Entry, error) {
	entries, err := q.ListPlaying(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list playing entries")
	}
	switch len(entries) {
	case 0:
		return nil, nil
	case 1:
		return &entries[0], nil
	default:
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		err := invariantf("%d entries are playing: %v", len(entries), ids)
		zlog.Error().Msgf("playlist: %v", err)
		return nil, err
	}
}

// ConnectPlayer binds the player device to a transport channel. Only one
// player may be connected at a time. Whatever the previous connection left
// playing is put back in the queue.
func (m *Manager) ConnectPlayer(ctx context.Context, u user.User, channel string) error {
	if !u.IsPlayer {
		return ErrForbidden
	}

	m.karaokeMu.Lock()
	defer m.karaokeMu.Unlock()

	k, err := m.store.GetKaraoke(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get karaoke")
	}
	if k.ChannelName != "" {
		return errors.Wrapf(ErrPlayerConnected, "channel=%s", k.ChannelName)
	}
	if err := m.resetPlayer(ctx); err != nil {
		return err
	}
	k.ChannelName = channel
	if err := m.store.SaveKaraoke(ctx, k); err != nil {
		return errors.Wrap(err, "failed to bind player channel")
	}
	zlog.Info().Msgf("player connected: user=%s channel=%s", u.ID, channel)
	return nil
}

// DisconnectPlayer releases the player binding of a dropped channel and
// resets the player to idle. Channels that do not own the player are
// ignored.
func (m *Manager) DisconnectPlayer(ctx context.Context, channel string) error {
	m.karaokeMu.Lock()
	defer m.karaokeMu.Unlock()

	k, err := m.store.GetKaraoke(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get karaoke")
	}
	if k.ChannelName != channel {
		return nil
	}
	if err := m.resetPlayer(ctx); err != nil {
		zlog.Error().Msgf("failed to reset player on disconnect: %v", err)
	}
	k.ChannelName = ""
	if err := m.store.SaveKaraoke(ctx, k); err != nil {
		return errors.Wrap(err, "failed to release player channel")
	}
	zlog.Info().Msgf("player disconnected: channel=%s", channel)
	return nil
}

// PlayerReady is sent by the player once it is able to play: it gets the
// next entry, or idle.
func (m *Manager) PlayerReady(ctx context.Context, u user.User) error {
	if !u.IsPlayer {
		return ErrForbidden
	}
	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	m.broadcast([]outgoing{m.nextFor(ctx)})
	return nil
}
