package editmode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKey is where the shared snapshot is stored
const DefaultRedisKey = "nexus-mcp:editmode"

// SharedCache shares a configuration snapshot between replicas
type SharedCache interface {
	Get(ctx context.Context) (*Config, bool, error)
	Set(ctx context.Context, cfg *Config, ttl time.Duration) error
	Delete(ctx context.Context) error
}

// RedisCache is a SharedCache backed by Redis
type RedisCache struct {
	client *redis.Client
	key    string
}

// NewRedisCache creates a Redis-backed snapshot cache
func NewRedisCache(client *redis.Client, key string) *RedisCache {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisCache{client: client, key: key}
}

// Get returns the shared snapshot if present
func (r *RedisCache) Get(ctx context.Context) (*Config, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read edit mode snapshot: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, false, fmt.Errorf("failed to decode edit mode snapshot: %w", err)
	}
	return &cfg, true, nil
}

// Set stores the snapshot with a TTL
func (r *RedisCache) Set(ctx context.Context, cfg *Config, ttl time.Duration) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode edit mode snapshot: %w", err)
	}
	return r.client.Set(ctx, r.key, data, ttl).Err()
}

// Delete removes the snapshot
func (r *RedisCache) Delete(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
