package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tajautos/backend/internal/domain"
)

type RedisRestockCache struct {
	client *redis.Client
}

func NewRedisRestockCache(addr string, password string, db int) *RedisRestockCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisRestockCache{client: client}
}

func (c *RedisRestockCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRestockCache) Close() error {
	return c.client.Close()
}

func (c *RedisRestockCache) Get(ctx context.Context, key string) (*domain.RestockReport, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.RestockReport
	if err := json.Unmarshal(val, &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisRestockCache) Set(ctx context.Context, key string, value *domain.RestockReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
