// Package session provides the karaoke session manager: the playlist, the
// session flags, the player state machine and the events they emit.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/app/cache"
	"github.com/osa030/karabox/internal/app/filter"
	"github.com/osa030/karabox/internal/app/notification"
	"github.com/osa030/karabox/internal/app/scheduler"
	"github.com/osa030/karabox/internal/app/store"
	"github.com/osa030/karabox/internal/domain/karaoke"
	"github.com/osa030/karabox/internal/domain/library"
	"github.com/osa030/karabox/internal/domain/player"
	"github.com/osa030/karabox/internal/domain/playlist"
	"github.com/osa030/karabox/internal/infra/config"
)

// Cache keys and lock names.
const (
	keyPlayerStatus  = "player:status"
	keyPlayerCommand = "player:command"
	keyDateStopJob   = "karaoke:date_stop_job"
	lockPlayer       = "player"
)

// Manager manages the karaoke session.
type Manager struct {
	// Configuration
	config *config.Config

	// Collaborators
	store   store.Store
	cache   cache.Cache
	catalog library.Catalog

	// Components
	filterChain  *filter.Chain
	notification *notification.Manager
	scheduler    *scheduler.Scheduler

	queueMu   sync.Mutex // Serializes playlist mutations
	karaokeMu sync.Mutex // Serializes session flag updates
	publishMu sync.Mutex // Keeps broadcasts in commit order

	now func() time.Time
}

// NewManager creates a new session manager.
func NewManager(
	cfg *config.Config,
	st store.Store,
	c cache.Cache,
	catalog library.Catalog,
) (*Manager, error) {
	m := &Manager{
		config:       cfg,
		store:        st,
		cache:        c,
		catalog:      catalog,
		filterChain:  filter.NewChain(),
		notification: notification.NewManager(),
		scheduler:    scheduler.New(),
		now:          time.Now,
	}

	if err := m.setupFilters(); err != nil {
		return nil, errors.Wrap(err, "failed to setup filters")
	}
	return m, nil
}

// setupFilters initializes the filter chain: built-in filters first, then
// the optional filters enabled in the configuration.
func (m *Manager) setupFilters() error {
	cfg := m.config

	for _, f := range filter.Builtin(cfg.Playlist.SizeLimit) {
		if settings := cfg.GetFilterSettings(f.Name()); settings != nil {
			if err := f.ValidateConfig(settings); err != nil {
				return errors.Wrapf(err, "filter %s", f.Name())
			}
		}
		m.filterChain.Add(f)
	}

	registry := filter.GetRegistered()
	for name, fc := range cfg.Filters {
		if !fc.Enabled || filter.IsBuiltin(name) {
			continue
		}
		factory, ok := registry[name]
		if !ok {
			return errors.Newf("unknown filter %s", name)
		}
		f := factory()
		if err := f.ValidateConfig(fc.Settings); err != nil {
			return errors.Wrapf(err, "filter %s", name)
		}
		m.filterChain.Add(f)
	}

	for _, f := range m.filterChain.Filters() {
		zlog.Debug().Msgf("filter enabled: %s", f.Name())
	}
	return nil
}

// Notifier returns the event broadcaster clients subscribe to.
func (m *Manager) Notifier() *notification.Manager {
	return m.notification
}

// Recover brings the session back to a consistent state after a start:
// no player can be connected yet, and the stop date job of a previous
// process is gone. Store errors are logged and ignored so that the server
// still starts.
func (m *Manager) Recover(ctx context.Context) error {
	m.karaokeMu.Lock()
	defer m.karaokeMu.Unlock()

	k, err := m.store.GetKaraoke(ctx)
	if err != nil {
		zlog.Warn().Msgf("store unavailable, skipping recovery: %v", err)
		return nil
	}

	if k.ChannelName != "" {
		zlog.Info().Msgf("clearing stale player channel: channel=%s", k.ChannelName)
		k.ChannelName = ""
		if err := m.store.SaveKaraoke(ctx, k); err != nil {
			zlog.Warn().Msgf("failed to clear player channel: %v", err)
		}
	}

	if err := m.resetPlayer(ctx); err != nil {
		zlog.Warn().Msgf("failed to reset player state: %v", err)
	}

	if k.DateStop == nil {
		return nil
	}
	if k.DateStopExpired(m.now()) {
		zlog.Info().Msg("karaoke stop date expired while stopped, clearing it")
		if _, err := m.clearDateStopLocked(ctx); err != nil {
			zlog.Warn().Msgf("failed to clear stop date: %v", err)
		}
		return nil
	}
	if err := m.scheduleDateStop(ctx, k.DateStop); err != nil {
		zlog.Warn().Msgf("failed to schedule stop date: %v", err)
	}
	return nil
}

// resetPlayer puts the playing entry back in the queue and the player state
// to idle.
func (m *Manager) resetPlayer(ctx context.Context) error {
	return m.mutatePlayer(ctx, func(st player.Status) (*transition, error) {
		if err := m.requeuePlaying(ctx); err != nil {
			return nil, err
		}
		st.Reset(m.now())
		return &transition{status: st}, nil
	})
}

// Close stops scheduled jobs and drops every subscriber.
func (m *Manager) Close() {
	m.scheduler.Stop()
	m.notification.Close()
}

// Digest is everything a newly connected client needs.
type Digest struct {
	PlayerStatus player.Status          `json:"player_status"`
	PlayerEntry  *playlist.Entry        `json:"player_entry"`
	PlayerManage *player.Command        `json:"player_manage"`
	PlayerErrors []playlist.PlayerError `json:"player_errors"`
	Karaoke      karaoke.Karaoke        `json:"karaoke"`
	Playlist     playlist.Schedule      `json:"playlist"`
}

// Digest returns the aggregated state of the session.
func (m *Manager) Digest(ctx context.Context) (Digest, error) {
	var d Digest
	var err error

	if d.PlayerStatus, err = m.PlayerStatus(ctx); err != nil {
		return Digest{}, err
	}
	if !d.PlayerStatus.IsIdle() {
		e, err := m.store.GetEntry(ctx, d.PlayerStatus.EntryID)
		if err == nil {
			d.PlayerEntry = &e
		} else if !errors.Is(err, store.ErrNotFound) {
			return Digest{}, errors.Wrap(err, "failed to get player entry")
		}
	}
	if d.PlayerManage, err = m.PendingCommand(ctx); err != nil {
		return Digest{}, err
	}
	if d.PlayerErrors, err = m.PlayerErrors(ctx); err != nil {
		return Digest{}, err
	}
	if d.Karaoke, err = m.Karaoke(ctx); err != nil {
		return Digest{}, err
	}
	if d.Playlist, err = m.Schedule(ctx); err != nil {
		return Digest{}, err
	}
	return d, nil
}

// outgoing is an event waiting to be broadcast.
type outgoing struct {
	topic     notification.Topic
	eventType string
	data      any
}

// emit broadcasts events in order.
func (m *Manager) emit(events ...outgoing) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	m.broadcast(events)
}

func (m *Manager) broadcast(events []outgoing) {
	for _, ev := range events {
		m.notification.Broadcast(ev.topic, ev.eventType, ev.data)
	}
}
