package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// TokenCache stores the bearer token shared by every caller of the gateway.
// Concurrent refreshes are tolerated: the last writer wins.
type TokenCache interface {
	Get(ctx context.Context) (string, bool)
	Refresh(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// MemoryTokenCache keeps the token for the lifetime of the process
type MemoryTokenCache struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

func (c *MemoryTokenCache) Get(ctx context.Context) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

func (c *MemoryTokenCache) Refresh(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	return nil
}

func (c *MemoryTokenCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	return nil
}

// RedisTokenCache shares the token between every worker process.
// No expiry is tracked here; a 401 from the external API clears it.
type RedisTokenCache struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisTokenCache creates a Redis backed token cache under key
func NewRedisTokenCache(client *redis.Client, key string, logger *zap.Logger) *RedisTokenCache {
	return &RedisTokenCache{
		client: client,
		key:    key,
		logger: logger,
	}
}

func (c *RedisTokenCache) Get(ctx context.Context) (string, bool) {
	token, err := c.client.Get(ctx, c.key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Failed to read gateway token from Redis", zap.Error(err))
		}
		return "", false
	}
	return token, token != ""
}

func (c *RedisTokenCache) Refresh(ctx context.Context, token string) error {
	return c.client.Set(ctx, c.key, token, time.Duration(0)).Err()
}

func (c *RedisTokenCache) Clear(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
