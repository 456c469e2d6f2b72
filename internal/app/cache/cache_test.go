package cache

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemory_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	var got sample
	assert.True(t, errors.Is(c.Get(ctx, "k", &got), ErrMiss))

	require.NoError(t, c.Set(ctx, "k", sample{Name: "a", Count: 2}))
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, sample{Name: "a", Count: 2}, got)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.True(t, errors.Is(c.Get(ctx, "k", &got), ErrMiss))
}

func TestMemory_LockIsExclusive(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	unlock, err := c.Lock(ctx, "player")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = c.Lock(waitCtx, "player")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// other names are independent
	unlockOther, err := c.Lock(ctx, "other")
	require.NoError(t, err)
	unlockOther()

	unlock()
	unlock() // releasing twice is harmless

	unlock2, err := c.Lock(ctx, "player")
	require.NoError(t, err)
	unlock2()
}
