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
)

// IssueCommand stores a control command and pushes it to the player.
// Playlist managers may always command the player, other users only
// while their own entry plays.
func (m *Manager) IssueCommand(ctx context.Context, u user.User, kind player.CommandKind) (player.Command, error) {
	if _, err := player.ParseCommand(string(kind)); err != nil {
		return player.Command{}, errors.Wrap(ErrUnknownCommand, err.Error())
	}

	k, err := m.store.GetKaraoke(ctx)
	if err != nil {
		return player.Command{}, errors.Wrap(err, "failed to get karaoke")
	}
	if !k.Ongoing {
		return player.Command{}, ErrNotOngoing
	}

	st, err := m.loadStatus(ctx)
	if err != nil {
		return player.Command{}, err
	}
	if st.IsIdle() {
		return player.Command{}, ErrPlayerIdle
	}
	if !u.IsPlaylistManager() {
		e, err := m.store.GetEntry(ctx, st.EntryID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return player.Command{}, errors.Wrap(err, "failed to get playing entry")
		}
		if err != nil || e.OwnerID != u.ID {
			return player.Command{}, ErrForbidden
		}
	}

	cmd := player.Command{Kind: kind, Date: m.now()}
	if err := m.cache.Set(ctx, keyPlayerCommand, cmd); err != nil {
		return player.Command{}, errors.Wrap(err, "failed to save player command")
	}
	zlog.Info().Msgf("player command issued: command=%s user=%s", kind, u.ID)
	m.emit(outgoing{notification.TopicPlayer, notification.TypeCommand, cmd})
	return cmd, nil
}

// PendingCommand returns the command not yet consumed by the player, or nil.
func (m *Manager) PendingCommand(ctx context.Context) (*player.Command, error) {
	var cmd player.Command
	err := m.cache.Get(ctx, keyPlayerCommand, &cmd)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get player command")
	}
	return &cmd, nil
}

// ReportError records a playback failure reported by the player.
// It does not advance the playlist.
func (m *Manager) ReportError(ctx context.Context, u user.User, entryID, message string) (playlist.PlayerError, error) {
	if !u.IsPlayer {
		return playlist.PlayerError{}, ErrForbidden
	}
	if _, err := m.store.GetEntry(ctx, entryID); err != nil {
		return playlist.PlayerError{}, errors.Wrapf(err, "entry=%s", entryID)
	}
	if message == "" {
		message = defaultErrorMessage
	}

	pe := playlist.PlayerError{
		ID:          uuid.New().String(),
		EntryID:     entryID,
		Message:     message,
		DateCreated: m.now(),
	}
	if err := m.store.InsertPlayerError(ctx, pe); err != nil {
		return playlist.PlayerError{}, errors.Wrap(err, "failed to record player error")
	}
	zlog.Warn().Msgf("player error: entry=%s message=%s", entryID, message)
	m.emit(outgoing{notification.TopicFront, notification.TypePlayerError, pe})
	return pe, nil
}

// PlayerErrors returns the recorded player errors, oldest first.
func (m *Manager) PlayerErrors(ctx context.Context) ([]playlist.PlayerError, error) {
	errs, err := m.store.ListPlayerErrors(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list player errors")
	}
	return errs, nil
}
