package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache key prefixes.
const (
	// CacheKeyUserWorkouts caches the workout list of one user: workouts:user:{userID}
	CacheKeyUserWorkouts = "workouts:user"
)

// TTLUserWorkouts bounds staleness if an invalidation is lost.
const TTLUserWorkouts = 5 * time.Minute

// cacheVersionTTL keeps invalidation counters well past any value TTL.
const cacheVersionTTL = time.Hour

// ErrCacheNotFound is returned when a key does not exist.
var ErrCacheNotFound = errors.New("cache: key not found")

// ErrCacheStale is returned by SetIfVersion when key was invalidated after its
// version was read.
var ErrCacheStale = errors.New("cache: key invalidated while loading")

// errCacheDisabled is returned by every operation when Redis is not configured.
var errCacheDisabled = errors.New("cache: redis client is nil")

// CacheClient is a JSON value cache.
type CacheClient interface {
	// Get decodes the value at key into dest, or returns ErrCacheNotFound.
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Version returns the invalidation counter of key, 0 if it was never invalidated.
	Version(ctx context.Context, key string) (int64, error)
	// SetIfVersion stores value only while the invalidation counter of key
	// still equals version, and returns ErrCacheStale otherwise.
	SetIfVersion(ctx context.Context, key string, value interface{}, ttl time.Duration, version int64) error
	// Invalidate deletes keys and bumps their invalidation counters.
	Invalidate(ctx context.Context, keys ...string) error
}

type redisCache struct {
	client *redis.Client
}

// NewCacheClient wraps rdb. A nil rdb yields a cache whose operations all fail.
func NewCacheClient(rdb *redis.Client) CacheClient {
	return &redisCache{client: rdb}
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return errCacheDisabled
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheNotFound
	}
	if err != nil {
		return fmt.Errorf("cache: failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return errCacheDisabled
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil {
		return errCacheDisabled
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete keys %s: %w", strings.Join(keys, ","), err)
	}
	return nil
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.client == nil {
		return false, errCacheDisabled
	}
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to check key %s: %w", key, err)
	}
	return n > 0, nil
}

func (c *redisCache) Version(ctx context.Context, key string) (int64, error) {
	if c.client == nil {
		return 0, errCacheDisabled
	}

	v, err := c.client.Get(ctx, versionKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: failed to read version of key %s: %w", key, err)
	}
	return v, nil
}

func (c *redisCache) SetIfVersion(ctx context.Context, key string, value interface{}, ttl time.Duration, version int64) error {
	if c.client == nil {
		return errCacheDisabled
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	vkey := versionKey(key)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vkey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != version {
			return ErrCacheStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		return err
	}, vkey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCacheStale), errors.Is(err, redis.TxFailedErr):
		return ErrCacheStale
	default:
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}
}

func (c *redisCache) Invalidate(ctx context.Context, keys ...string) error {
	if c.client == nil {
		return errCacheDisabled
	}
	if len(keys) == 0 {
		return nil
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		for _, k := range keys {
			pipe.Incr(ctx, versionKey(k))
			pipe.Expire(ctx, versionKey(k), cacheVersionTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: failed to invalidate keys %s: %w", strings.Join(keys, ","), err)
	}
	return nil
}

// BuildCacheKey joins prefix and parts with ":".
func BuildCacheKey(prefix string, parts ...string) string {
	return strings.Join(append([]string{prefix}, parts...), ":")
}

// userWorkoutsKey returns workouts:user:{userID}.
func userWorkoutsKey(userID int64) string {
	return BuildCacheKey(CacheKeyUserWorkouts, strconv.FormatInt(userID, 10))
}

func versionKey(key string) string {
	return key + ":version"
}
