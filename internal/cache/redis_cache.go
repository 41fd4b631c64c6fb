package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisImageURLCache struct {
	client *redis.Client
}

func NewRedisImageURLCache(addr string, password string, db int) *RedisImageURLCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisImageURLCache{client: client}
}

func (c *RedisImageURLCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisImageURLCache) Close() error {
	return c.client.Close()
}

func (c *RedisImageURLCache) Get(ctx context.Context, sourceURL string) (string, bool, error) {
	val, err := c.client.Get(ctx, imageKey(sourceURL)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisImageURLCache) Set(ctx context.Context, sourceURL string, hostedURL string, ttl time.Duration) error {
	if hostedURL == "" {
		return nil
	}
	return c.client.Set(ctx, imageKey(sourceURL), hostedURL, ttl).Err()
}

func imageKey(sourceURL string) string {
	return "img:rehost:" + sourceURL
}
