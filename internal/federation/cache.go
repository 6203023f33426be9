package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nexushub/controlplane/internal/apiserver/database"
	"github.com/nexushub/controlplane/internal/common/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ControlsCache keeps the federation controls snapshot close to the request
// path. Readers hit it on every federation decision; writers invalidate it.
type ControlsCache interface {
	Get(ctx context.Context) (*database.FederationSystemControls, bool)
	Set(ctx context.Context, controls *database.FederationSystemControls)
	Invalidate(ctx context.Context)
}

// NewControlsCache builds a cache from configuration: "redis" or "memory".
func NewControlsCache(cfg *config.CacheConfig, logger *zap.Logger) (ControlsCache, error) {
	switch cfg.Type {
	case "redis":
		return newRedisCache(&cfg.Redis, logger), nil
	case "", "memory":
		return newMemoryCache(cfg.Redis.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// memoryCache is a single-value TTL cache.
type memoryCache struct {
	mu       sync.RWMutex
	controls *database.FederationSystemControls
	ttl      time.Duration
	storedAt time.Time
}

func newMemoryCache(ttl time.Duration) *memoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &memoryCache{ttl: ttl}
}

func (c *memoryCache) Get(_ context.Context) (*database.FederationSystemControls, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.controls == nil || time.Since(c.storedAt) > c.ttl {
		return nil, false
	}
	snapshot := *c.controls
	return &snapshot, true
}

func (c *memoryCache) Set(_ context.Context, controls *database.FederationSystemControls) {
	snapshot := *controls
	c.mu.Lock()
	c.controls = &snapshot
	c.storedAt = time.Now()
	c.mu.Unlock()
}

func (c *memoryCache) Invalidate(_ context.Context) {
	c.mu.Lock()
	c.controls = nil
	c.mu.Unlock()
}

// redisCache shares the snapshot across instances. Failures degrade to cache
// misses; the database stays authoritative.
type redisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func newRedisCache(cfg *config.CacheRedisConfig, logger *zap.Logger) *redisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "controlplane"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &redisCache{
		client: client,
		key:    prefix + ":federation:controls",
		ttl:    ttl,
		logger: logger.Named("controls-cache"),
	}
}

func (c *redisCache) Get(ctx context.Context) (*database.FederationSystemControls, bool) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("controls cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var controls database.FederationSystemControls
	if err := json.Unmarshal(raw, &controls); err != nil {
		c.logger.Warn("controls cache entry corrupt, dropping", zap.Error(err))
		_ = c.client.Del(ctx, c.key).Err()
		return nil, false
	}
	return &controls, true
}

func (c *redisCache) Set(ctx context.Context, controls *database.FederationSystemControls) {
	raw, err := json.Marshal(controls)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("controls cache write failed", zap.Error(err))
	}
}

func (c *redisCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		c.logger.Warn("controls cache invalidation failed", zap.Error(err))
	}
}
