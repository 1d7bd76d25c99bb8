package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CacheMetrics 缓存命中/未命中计数的可选接收器。
type CacheMetrics interface {
	IncEmbeddingCacheHit()
	IncEmbeddingCacheMiss()
}

// CacheConfig 嵌入缓存配置。
type CacheConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// DefaultCacheConfig 返回默认缓存配置。
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Addr: "localhost:6379",
		TTL:  24 * time.Hour,
	}
}

// CachedProvider wraps a Provider with a Redis-backed vector cache. The same
// text is embedded at write time and again at read time, so caching halves
// upstream traffic for the common save-then-search path. Concurrent embeds of
// the same text are collapsed with singleflight. Cache failures degrade to a
// direct upstream call.
type CachedProvider struct {
	inner   Provider
	redis   *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics CacheMetrics
	logger  *zap.Logger
}

// NewCachedProvider 创建带 Redis 缓存的嵌入提供者。metrics 可为 nil。
func NewCachedProvider(inner Provider, cfg CacheConfig, metrics CacheMetrics, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &CachedProvider{
		inner:   inner,
		redis:   client,
		ttl:     cfg.TTL,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "embedding_cache")),
	}
}

func (c *CachedProvider) Model() string   { return c.inner.Model() }
func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }

// Embed 先查缓存，未命中时调用上游并回填。
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.lookup(ctx, key); ok {
		if c.metrics != nil {
			c.metrics.IncEmbeddingCacheHit()
		}
		return vec, nil
	}
	if c.metrics != nil {
		c.metrics.IncEmbeddingCacheMiss()
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		vec, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// Close releases the Redis connection.
func (c *CachedProvider) Close() error {
	return c.redis.Close()
}

func (c *CachedProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "crewmem:emb:" + c.inner.Model() + ":" + hex.EncodeToString(sum[:16])
}

func (c *CachedProvider) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("embedding cache lookup failed", zap.Error(err))
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		c.logger.Warn("corrupt embedding cache entry, ignoring",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedProvider) store(ctx context.Context, key string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache store failed", zap.Error(err))
	}
}
