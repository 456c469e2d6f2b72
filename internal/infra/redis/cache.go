// Package redis provides a cache.Cache backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/app/cache"
)

const lockRetryInterval = 10 * time.Millisecond

// unlockScript deletes the lock only if it is still held by the caller.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Cache stores JSON values under a key prefix.
type Cache struct {
	rdb     *redis.Client
	prefix  string
	lockTTL time.Duration
}

// Connect parses url and checks the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse redis url")
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, "failed to reach redis")
	}
	zlog.Info().Msgf("redis connected: addr=%s db=%d", opt.Addr, opt.DB)
	return rdb, nil
}

// New creates a cache on rdb. Locks expire after lockTTL if never released.
func New(rdb *redis.Client, prefix string, lockTTL time.Duration) *Cache {
	return &Cache{rdb: rdb, prefix: prefix, lockTTL: lockTTL}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

func (c *Cache) Get(ctx context.Context, key string, dst any) error {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cache.ErrMiss
	}
	if err != nil {
		return errors.Wrapf(err, "get %s", key)
	}
	return errors.Wrapf(json.Unmarshal(raw, dst), "decode %s", key)
}

func (c *Cache) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return errors.Wrapf(c.rdb.Set(ctx, c.key(key), raw, 0).Err(), "set %s", key)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(c.rdb.Del(ctx, c.key(key)).Err(), "delete %s", key)
}

// Lock takes the lock with SET NX and polls until it succeeds or ctx is done.
func (c *Cache) Lock(ctx context.Context, name string) (func(), error) {
	key := c.key("lock:" + name)
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := c.rdb.SetNX(ctx, key, token, c.lockTTL).Result()
		if err != nil && ctx.Err() == nil {
			return nil, errors.Wrapf(err, "acquire lock %s", name)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "acquire lock %s", name)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			err := unlockScript.Run(context.Background(), c.rdb, []string{key}, token).Err()
			if err != nil {
				zlog.Error().Err(err).Msgf("failed to release lock: name=%s", name)
			}
		})
	}, nil
}

var _ cache.Cache = (*Cache)(nil)
