package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/karabox/internal/domain/karaoke"
	"github.com/osa030/karabox/internal/domain/playlist"
)

// Memory is an in-process Store. Transactions work on a copy of the state
// that replaces the live state on commit.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

// WithTx runs fn on a snapshot and commits it when fn succeeds.
// Transactions are serialized.
func (m *Memory) WithTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := m.state.clone()
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx
	return nil
}

func (m *Memory) GetKaraoke(ctx context.Context) (karaoke.Karaoke, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetKaraoke(ctx)
}

func (m *Memory) SaveKaraoke(ctx context.Context, k karaoke.Karaoke) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveKaraoke(ctx, k)
}

func (m *Memory) InsertEntry(ctx context.Context, e playlist.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertEntry(ctx, e)
}

func (m *Memory) GetEntry(ctx context.Context, id string) (playlist.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetEntry(ctx, id)
}

func (m *Memory) UpdateEntry(ctx context.Context, e playlist.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateEntry(ctx, e)
}

func (m *Memory) UpdatePosition(ctx context.Context, id string, position float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdatePosition(ctx, id, position)
}

func (m *Memory) DeleteQueued(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeleteQueued(ctx, id)
}

func (m *Memory) DeleteAllEntries(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeleteAllEntries(ctx)
}

func (m *Memory) ListQueued(ctx context.Context) ([]playlist.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListQueued(ctx)
}

func (m *Memory) ListPlaying(ctx context.Context) ([]playlist.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListPlaying(ctx)
}

func (m *Memory) ListPlayed(ctx context.Context) ([]playlist.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListPlayed(ctx)
}

func (m *Memory) MaxPosition(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.MaxPosition(ctx)
}

func (m *Memory) CountPending(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CountPending(ctx)
}

func (m *Memory) InsertPlayerError(ctx context.Context, pe playlist.PlayerError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertPlayerError(ctx, pe)
}

func (m *Memory) ListPlayerErrors(ctx context.Context) ([]playlist.PlayerError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListPlayerErrors(ctx)
}

func (m *Memory) DeleteAllPlayerErrors(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeleteAllPlayerErrors(ctx)
}

// memState holds the data. It is not synchronized.
type memState struct {
	karaoke *karaoke.Karaoke
	entries map[string]playlist.Entry
	errors  []playlist.PlayerError
}

func newMemState() *memState {
	return &memState{entries: make(map[string]playlist.Entry)}
}

func (s *memState) clone() *memState {
	c := newMemState()
	if s.karaoke != nil {
		k := *s.karaoke
		c.karaoke = &k
	}
	for id, e := range s.entries {
		c.entries[id] = e
	}
	c.errors = append(c.errors, s.errors...)
	return c
}

func (s *memState) GetKaraoke(ctx context.Context) (karaoke.Karaoke, error) {
	if s.karaoke == nil {
		k := karaoke.Default()
		s.karaoke = &k
	}
	return *s.karaoke, nil
}

func (s *memState) SaveKaraoke(ctx context.Context, k karaoke.Karaoke) error {
	s.karaoke = &k
	return nil
}

func (s *memState) InsertEntry(ctx context.Context, e playlist.Entry) error {
	if _, ok := s.entries[e.ID]; ok {
		return errors.Newf("entry %s already exists", e.ID)
	}
	s.entries[e.ID] = e
	return nil
}

func (s *memState) GetEntry(ctx context.Context, id string) (playlist.Entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return playlist.Entry{}, errors.Wrapf(ErrNotFound, "entry %s", id)
	}
	return e, nil
}

func (s *memState) UpdateEntry(ctx context.Context, e playlist.Entry) error {
	cur, ok := s.entries[e.ID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "entry %s", e.ID)
	}
	e.Position = cur.Position
	s.entries[e.ID] = e
	return nil
}

func (s *memState) queued(id string) (playlist.Entry, error) {
	e, ok := s.entries[id]
	if !ok || e.State() != playlist.StateQueued {
		return playlist.Entry{}, errors.Wrapf(ErrNotFound, "queued entry %s", id)
	}
	return e, nil
}

func (s *memState) UpdatePosition(ctx context.Context, id string, position float64) error {
	e, err := s.queued(id)
	if err != nil {
		return err
	}
	e.Position = position
	s.entries[id] = e
	return nil
}

func (s *memState) DeleteQueued(ctx context.Context, id string) error {
	if _, err := s.queued(id); err != nil {
		return err
	}
	delete(s.entries, id)
	return nil
}

func (s *memState) DeleteAllEntries(ctx context.Context) error {
	s.entries = make(map[string]playlist.Entry)
	return nil
}

func (s *memState) filter(state playlist.State) []playlist.Entry {
	out := make([]playlist.Entry, 0)
	for _, e := range s.entries {
		if e.State() == state {
			out = append(out, e)
		}
	}
	return out
}

func (s *memState) ListQueued(ctx context.Context) ([]playlist.Entry, error) {
	out := s.filter(playlist.StateQueued)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].DateCreated.Before(out[j].DateCreated)
	})
	return out, nil
}

func (s *memState) ListPlaying(ctx context.Context) ([]playlist.Entry, error) {
	return s.filter(playlist.StatePlaying), nil
}

func (s *memState) ListPlayed(ctx context.Context) ([]playlist.Entry, error) {
	out := s.filter(playlist.StatePlayed)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].DatePlayed, out[j].DatePlayed
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	return out, nil
}

func (s *memState) MaxPosition(ctx context.Context) (float64, error) {
	var top float64
	for _, e := range s.entries {
		if e.Position > top {
			top = e.Position
		}
	}
	return top, nil
}

func (s *memState) CountPending(ctx context.Context) (int, error) {
	n := 0
	for _, e := range s.entries {
		if !e.WasPlayed {
			n++
		}
	}
	return n, nil
}

func (s *memState) InsertPlayerError(ctx context.Context, pe playlist.PlayerError) error {
	s.errors = append(s.errors, pe)
	return nil
}

func (s *memState) ListPlayerErrors(ctx context.Context) ([]playlist.PlayerError, error) {
	out := make([]playlist.PlayerError, len(s.errors))
	copy(out, s.errors)
	return out, nil
}

func (s *memState) DeleteAllPlayerErrors(ctx context.Context) error {
	s.errors = nil
	return nil
}
