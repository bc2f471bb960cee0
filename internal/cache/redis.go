package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "meteorite-explorer/internal/errors"
)

// RedisConfig describes the Redis connection of the cache.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// Redis is a Cache shared by every instance pointing at the same server.
// Keys are stored under Prefix so Invalidate never touches foreign data.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "redis address must not be empty")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "meteorite:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeCacheFailure, err, "connect redis")
	}
	return &Redis{client: client, prefix: prefix}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.Wrap(xerrors.CodeCacheFailure, err, "redis get "+key)
	}
	return value, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeCacheFailure, err, "redis set "+key)
	}
	return nil
}

// Invalidate deletes all keys under the prefix using SCAN, so it does not
// block the server on large keyspaces.
func (r *Redis) Invalidate(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 200).Result()
		if err != nil {
			return xerrors.Wrap(xerrors.CodeCacheFailure, err, "redis scan")
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return xerrors.Wrap(xerrors.CodeCacheFailure, err, "redis del")
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close implements Cache.
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

var _ Cache = (*Redis)(nil)
