// Package data provides the persistence, cache, dependency and broker adapters.
package data

import (
	"FitTrack/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewCacheClient,
	NewMySQLClient,
	NewWorkoutRepo,
	NewBreakerRegistry,
	NewDependencyClient,
	NewEventPublisher,
)

// Data holds resources shared by repositories.
type Data struct {
	db          *gorm.DB
	redisClient *redis.Client
	cache       CacheClient
}

// NewData bundles the storage clients. A nil Redis client disables caching.
func NewData(_ *conf.Data, logger log.Logger, db *gorm.DB, rdb *redis.Client, cache CacheClient) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("redis client is nil, caching will be unavailable")
	}

	d := &Data{
		db:          db,
		redisClient: rdb,
		cache:       cache,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
	}

	return d, cleanup, nil
}

// GetCache returns the cache client.
func (d *Data) GetCache() CacheClient {
	return d.cache
}

// GetRedisClient returns the raw Redis client, which may be nil.
func (d *Data) GetRedisClient() *redis.Client {
	return d.redisClient
}
