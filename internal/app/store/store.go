// Package store defines the durable storage of the playlist and the karaoke
// session.
package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/karabox/internal/domain/karaoke"
	"github.com/osa030/karabox/internal/domain/playlist"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Queries is the set of operations available inside and outside a transaction.
type Queries interface {
	// GetKaraoke returns the session singleton, creating it on first access.
	GetKaraoke(ctx context.Context) (karaoke.Karaoke, error)
	SaveKaraoke(ctx context.Context, k karaoke.Karaoke) error

	InsertEntry(ctx context.Context, e playlist.Entry) error
	GetEntry(ctx context.Context, id string) (playlist.Entry, error)
	// UpdateEntry saves the play state of an entry. The order key is left
	// untouched.
	UpdateEntry(ctx context.Context, e playlist.Entry) error
	// UpdatePosition sets the order key of a queued entry. An entry that is
	// playing or played is reported as ErrNotFound.
	UpdatePosition(ctx context.Context, id string, position float64) error
	// DeleteQueued removes a queued entry. An entry that is playing or
	// played is reported as ErrNotFound.
	DeleteQueued(ctx context.Context, id string) error
	DeleteAllEntries(ctx context.Context) error
	// ListQueued returns entries neither playing nor played, in manual order.
	ListQueued(ctx context.Context) ([]playlist.Entry, error)
	// ListPlaying returns entries started and not played. More than one
	// result means the store is inconsistent.
	ListPlaying(ctx context.Context) ([]playlist.Entry, error)
	// ListPlayed returns played entries by play date.
	ListPlayed(ctx context.Context) ([]playlist.Entry, error)
	// MaxPosition returns the highest manual order key, or 0 when empty.
	MaxPosition(ctx context.Context) (float64, error)
	// CountPending returns the number of entries not played yet.
	CountPending(ctx context.Context) (int, error)

	InsertPlayerError(ctx context.Context, pe playlist.PlayerError) error
	ListPlayerErrors(ctx context.Context) ([]playlist.PlayerError, error)
	DeleteAllPlayerErrors(ctx context.Context) error
}

// Store is the durable storage.
type Store interface {
	Queries
	// WithTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}
