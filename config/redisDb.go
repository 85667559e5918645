package config

import (
	"context"
	"os"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

// GetRedisDB returns nil until ConnectRedisWithRetry succeeds; callers treat nil as "no Redis".
func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// RedisConfigured reports whether REDIS_ADDRESS is set. Without it journal numbers come
// from the database and posting locks are skipped.
func RedisConfigured() bool {
	return os.Getenv("REDIS_ADDRESS") != ""
}

// ConnectRedisWithRetry connects to REDIS_ADDRESS and sets the global client and lock client.
// On failure the globals stay nil.
func ConnectRedisWithRetry(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_ADDRESS"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
		PoolSize: intFromEnv("REDIS_POOL_SIZE", 20),
	})
	err := retryWithBackoff(ctx, "redis", func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return err
	}
	rdb = client
	locker = redislock.New(client)
	return nil
}
