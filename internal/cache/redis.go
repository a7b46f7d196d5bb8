package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/birb-feathers/internal/telemetry"
)

// RedisCache implements the Cache interface using Redis.
type RedisCache struct {
	client *redis.Client
	config *Config
}

// NewRedisCache creates a new Redis cache instance and verifies connectivity.
func NewRedisCache(config *Config) (*RedisCache, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Address(),
		Password:        config.Password,
		DB:              config.DB,
		MaxRetries:      config.MaxRetries,
		MinRetryBackoff: config.MinRetryBackoff,
		MaxRetryBackoff: config.MaxRetryBackoff,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		PoolSize:        config.PoolSize,
		MinIdleConns:    config.MinIdleConns,
		ConnMaxIdleTime: config.MaxIdleTime,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		config: config,
	}, nil
}

// NewRedisCacheFromClient wraps an existing client. Used by tests.
func NewRedisCacheFromClient(client *redis.Client, config *Config) *RedisCache {
	return &RedisCache{client: client, config: config}
}

// GetMany retrieves entries for the given keys in one pipelined round-trip.
// Cache failures degrade to all-absent rather than erroring so that the
// serving path falls through to the durable store.
func (r *RedisCache) GetMany(ctx context.Context, keys []string) ([]*Entry, error) {
	results := make([]*Entry, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	cmds := make([]*redis.StringCmd, len(keys))
	pipe := r.client.Pipeline()
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		telemetry.L().WithError(err).WithField("keys", len(keys)).
			Warn("cache GetMany failed, treating all keys as absent")
		return results, nil
	}

	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// redis.Nil means absent; anything else degrades to a miss.
			if !errors.Is(err, redis.Nil) {
				telemetry.L().WithError(err).WithField("key", keys[i]).
					Warn("cache read failed for key, treating as miss")
			}
			continue
		}

		entry, err := DecodeEntry(data)
		if err != nil {
			telemetry.L().WithError(err).WithField("key", keys[i]).
				Warn("corrupt cache entry, treating as miss")
			telemetry.RecordCorruptCacheEntry()
			continue
		}
		results[i] = entry
	}

	return results, nil
}

// SetMany stores entries with a shared TTL in one pipelined round-trip.
// A zero ttl falls back to the configured default.
func (r *RedisCache) SetMany(ctx context.Context, entries map[string]*Entry, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}

	if ttl == 0 {
		ttl = r.config.DefaultTTL
	}

	pipe := r.client.Pipeline()
	queued := 0
	for key, entry := range entries {
		data, err := EncodeEntry(entry)
		if err != nil {
			telemetry.L().WithError(err).WithField("key", key).
				Warn("failed to encode cache entry, skipping")
			continue
		}
		pipe.Set(ctx, key, data, ttl)
		queued++
	}
	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return NewCacheError("failed to set multiple keys", true).WithError(err)
	}
	return nil
}

// Invalidate deletes all keys matching a glob-style pattern, enumerating the
// keyspace in bounded SCAN chunks so large entities never block the tier.
// The returned count is advisory; concurrent writers may skew it.
func (r *RedisCache) Invalidate(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	chunk := make([]string, 0, r.config.ScanCount)

	iter := r.client.Scan(ctx, 0, pattern, r.config.ScanCount).Iterator()
	for iter.Next(ctx) {
		chunk = append(chunk, iter.Val())
		if int64(len(chunk)) >= r.config.ScanCount {
			n, err := r.deleteChunk(ctx, chunk)
			deleted += n
			if err != nil {
				return deleted, err
			}
			chunk = chunk[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, NewCacheError("failed to scan keys for invalidation", true).WithError(err)
	}

	n, err := r.deleteChunk(ctx, chunk)
	deleted += n
	if err != nil {
		return deleted, err
	}

	telemetry.L().WithFields(logrus.Fields{
		"pattern": pattern,
		"deleted": deleted,
	}).Info("invalidated cache entries")
	return deleted, nil
}

func (r *RedisCache) deleteChunk(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	result := r.client.Del(ctx, keys...)
	if err := result.Err(); err != nil {
		return 0, NewCacheError("failed to delete keys", true).WithError(err)
	}
	return int(result.Val()), nil
}

// Ping checks if the cache is healthy.
func (r *RedisCache) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewCacheError("ping failed", false).WithError(err)
	}
	return nil
}

// Close closes the cache connection.
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Stats returns Redis connection pool stats.
func (r *RedisCache) Stats() *redis.PoolStats {
	if r.client != nil {
		return r.client.PoolStats()
	}
	return nil
}
