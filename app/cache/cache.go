package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Cache is the capability contract consumed by the read paths. A (value, false, nil)
// result is a miss; transport failures surface as errors so callers can decide
// whether to degrade.
type Cache interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
}

var _ Cache = (*RedisCache)(nil)
var _ Cache = (*MemoryCache)(nil)

// RedisCache implements Cache on a shared go-redis client. Entries expire
// after the configured TTL; nothing actively invalidates them on mutation.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis and verifies connectivity before returning.
func NewRedisCache(url string, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis cache connection established")
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}, nil
}

func (c *RedisCache) GetString(ctx context.Context, key string) (string, bool, error) {
	value, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get error: %w", err)
	}
	return value, true, nil
}

func (c *RedisCache) SetString(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	value, found, err := c.GetString(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return false, fmt.Errorf("cached payload for %q is not valid JSON: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload for %q: %w", key, err)
	}
	return c.SetString(ctx, key, string(payload))
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// MemoryCache implements Cache in-process. Used in development and tests so
// the service runs without a Redis instance.
type MemoryCache struct {
	store *gocache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		store: gocache.New(ttl, 2*ttl),
	}
}

func (c *MemoryCache) GetString(_ context.Context, key string) (string, bool, error) {
	value, found := c.store.Get(key)
	if !found {
		return "", false, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", false, fmt.Errorf("cached value for %q is not a string", key)
	}
	return s, true, nil
}

func (c *MemoryCache) SetString(_ context.Context, key, value string) error {
	c.store.SetDefault(key, value)
	return nil
}

func (c *MemoryCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	value, found, err := c.GetString(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return false, fmt.Errorf("cached payload for %q is not valid JSON: %w", key, err)
	}
	return true, nil
}

func (c *MemoryCache) SetJSON(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache payload for %q: %w", key, err)
	}
	return c.SetString(ctx, key, string(payload))
}
