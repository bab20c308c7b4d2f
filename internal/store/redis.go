package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements Backend on Redis lists and strings.
type RedisBackend struct {
	client *redis.Client
}

// NewRedis connects to the server named by a redis:// URL.
func NewRedis(ctx context.Context, url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

// Append pushes value and trims the list in one pipeline round trip.
func (r *RedisBackend) Append(ctx context.Context, key, value string, maxLen int) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, value)
		if maxLen > 0 {
			pipe.LTrim(ctx, key, int64(-maxLen), -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

// Range returns the full list.
func (r *RedisBackend) Range(ctx context.Context, key string) ([]string, error) {
	values, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis range: %w", err)
	}
	return values, nil
}

// Replace deletes and rewrites the list inside MULTI/EXEC.
func (r *RedisBackend) Replace(ctx context.Context, key string, values []string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			args := make([]interface{}, len(values))
			for i, v := range values {
				args[i] = v
			}
			pipe.RPush(ctx, key, args...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis replace: %w", err)
	}
	return nil
}

var replaceIfEmptyScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('RPUSH', KEYS[1], unpack(ARGV))
return 1
`)

// ReplaceIfEmpty runs the existence check and RPUSH as one script.
func (r *RedisBackend) ReplaceIfEmpty(ctx context.Context, key string, values []string) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	n, err := replaceIfEmptyScript.Run(ctx, r.client, []string{key}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("redis replace if empty: %w", err)
	}
	return n == 1, nil
}

// SetIfAbsent uses SETNX.
func (r *RedisBackend) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Get returns the value at key.
func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

// Set stores value without expiry.
func (r *RedisBackend) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
