package data

import (
	"context"
	"time"

	"FitTrack/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates the cache client. An unreachable Redis does not fail
// startup: reads fall through to MySQL until it comes back.
func NewRedisClient(c *conf.Data, logger log.Logger) (*redis.Client, func(), error) {
	helper := log.NewHelper(logger)

	if c == nil || c.Redis == nil || c.Redis.Addr == "" {
		helper.Warn("redis address is empty, workout list caching disabled")
		return nil, func() {}, nil
	}

	network := c.Redis.Network
	if network == "" {
		network = "tcp"
	}

	rdb := redis.NewClient(&redis.Options{
		Network:         network,
		Addr:            c.Redis.Addr,
		PoolSize:        50,
		MinIdleConns:    5,
		DialTimeout:     time.Second,
		ReadTimeout:     c.Redis.ReadTimeout,
		WriteTimeout:    c.Redis.WriteTimeout,
		ConnMaxIdleTime: 5 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		helper.Warnw("msg", "redis unreachable, continuing without cache", "addr", c.Redis.Addr, "error", err)
	} else {
		helper.Infow("msg", "connected to redis", "addr", c.Redis.Addr)
	}

	cleanup := func() {
		helper.Info("closing redis client")
		if err := rdb.Close(); err != nil {
			helper.Errorf("failed to close redis client: %v", err)
		}
	}

	return rdb, cleanup, nil
}
