package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"safezone-api-server/config"
)

func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to ping Redis", slog.String("error", err.Error()))
		if err := rdb.Close(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	logger.Info("Connected to Redis successfully", slog.String("addr", cfg.Addr))
	return rdb, nil
}

// RedisJSON keeps one JSON encoded value under a fixed key.
type RedisJSON[T any] struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisJSON[T any](client redis.Cmdable, key string, ttl time.Duration) *RedisJSON[T] {
	return &RedisJSON[T]{client: client, key: key, ttl: ttl}
}

// Get returns ok=false on a miss.
func (c *RedisJSON[T]) Get(ctx context.Context) (T, bool, error) {
	var v T
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return v, false, nil
		}
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

func (c *RedisJSON[T]) Set(ctx context.Context, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, b, c.ttl).Err()
}

func (c *RedisJSON[T]) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
