// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBackend is a Redis-backed implementation of Backend.
type RedisBackend struct {
	client *redis.Client
	logger zerolog.Logger
	stats  struct {
		hits      atomic.Int64
		misses    atomic.Int64
		sets      atomic.Int64
		evictions atomic.Int64
	}
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisBackend connects to Redis and returns a Backend. Callers fall
// back to the in-memory backend when this fails.
func NewRedisBackend(config RedisConfig, logger zerolog.Logger) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info().
		Str("addr", config.Addr).
		Int("db", config.DB).
		Msg("connected to Redis cache")

	return &RedisBackend{client: client, logger: logger}, nil
}

func (c *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.stats.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		c.stats.misses.Add(1)
		return nil, false
	}

	c.stats.hits.Add(1)
	return val, true
}

func (c *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
		return
	}
	c.stats.sets.Add(1)
}

func (c *RedisBackend) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis delete failed")
	}
}

func (c *RedisBackend) DeletePrefix(ctx context.Context, prefix string) int {
	var deleted int
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err == nil {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Str("prefix", prefix).Msg("redis scan failed")
	}
	return deleted
}

// EvictLRU deletes up to n of the most idle keys, approximating LRU with
// OBJECT IDLETIME over a scan sample.
func (c *RedisBackend) EvictLRU(ctx context.Context, n int) int {
	if n <= 0 {
		return 0
	}

	type idleKey struct {
		key  string
		idle time.Duration
	}
	var sample []idleKey

	iter := c.client.Scan(ctx, 0, "*", 256).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		idle, err := c.client.ObjectIdleTime(ctx, key).Result()
		if err != nil {
			continue
		}
		sample = append(sample, idleKey{key: key, idle: idle})
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis eviction scan failed")
		return 0
	}

	// Most idle first.
	for i := 0; i < len(sample); i++ {
		for j := i + 1; j < len(sample); j++ {
			if sample[j].idle > sample[i].idle {
				sample[i], sample[j] = sample[j], sample[i]
			}
		}
	}

	evicted := 0
	for _, ik := range sample {
		if evicted >= n {
			break
		}
		if err := c.client.Del(ctx, ik.key).Err(); err == nil {
			evicted++
		}
	}
	c.stats.evictions.Add(int64(evicted))
	return evicted
}

func (c *RedisBackend) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("redis dbsize failed")
		size = 0
	}

	return Stats{
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		Sets:        c.stats.sets.Load(),
		Evictions:   c.stats.evictions.Load(),
		CurrentSize: int(size),
	}
}

// Close closes the Redis connection.
func (c *RedisBackend) Close() error {
	return c.client.Close()
}

// HealthCheck checks if Redis is available.
func (c *RedisBackend) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
