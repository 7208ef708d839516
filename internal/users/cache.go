package users

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache stores recently read profiles.
type Cache interface {
	Get(ctx context.Context, id uuid.UUID) (*Profile, error)
	Set(ctx context.Context, p Profile) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// RedisCache keeps profiles as JSON under profile:<id>.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache constructs a RedisCache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached profile or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	raw, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Set stores p.
func (c *RedisCache) Set(ctx context.Context, p Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(p.ID), raw, c.ttl).Err()
}

// Invalidate drops the cached entry for id.
func (c *RedisCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, cacheKey(id)).Err()
}

func cacheKey(id uuid.UUID) string {
	return "profile:" + id.String()
}
