// Package cache defines the ephemeral keyed store holding the player state.
package cache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// Cache is a volatile key-value store with named locks. Values are JSON
// encoded.
type Cache interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	// Lock acquires the named lock, waiting until ctx is done.
	// The returned func releases it.
	Lock(ctx context.Context, name string) (func(), error)
}

// Memory is an in-process Cache.
type Memory struct {
	mu    sync.Mutex
	data  map[string][]byte
	locks map[string]chan struct{}
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		data:  make(map[string][]byte),
		locks: make(map[string]chan struct{}),
	}
}

func (m *Memory) Get(ctx context.Context, key string, dst any) error {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return ErrMiss
	}
	return errors.Wrapf(json.Unmarshal(raw, dst), "decode %s", key)
}

func (m *Memory) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Lock(ctx context.Context, name string) (func(), error) {
	m.mu.Lock()
	sem, ok := m.locks[name]
	if !ok {
		sem = make(chan struct{}, 1)
		m.locks[name] = sem
	}
	m.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "acquire lock %s", name)
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-sem })
	}, nil
}
