package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EntityCache is a Redis-backed cache for per-chunk oracle results, so
// re-scrubbing an unchanged document skips model inference entirely.
type EntityCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	hits   int64
	misses int64
}

// New creates a Redis-backed entity cache and verifies connectivity.
func New(config *Config, logger *zap.Logger) (*EntityCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	if config.MinIdleConns > 0 {
		opts.MinIdleConns = config.MinIdleConns
	}

	cache := &EntityCache{
		client: redis.NewClient(opts),
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cache.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("entity cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// Get returns cached entity spans for a chunk, keyed by its digest.
func (c *EntityCache) Get(ctx context.Context, chunk string) ([]EntitySpan, bool) {
	data, err := c.client.Get(ctx, c.key(chunk)).Result()
	if err != nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var spans []EntitySpan
	if err := json.Unmarshal([]byte(data), &spans); err != nil {
		c.logger.Warn("corrupt cache entry dropped", zap.Error(err))
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return spans, true
}

// Set stores entity spans for a chunk. Values carry offsets only.
func (c *EntityCache) Set(ctx context.Context, chunk string, spans []EntitySpan) error {
	data, err := json.Marshal(spans)
	if err != nil {
		return fmt.Errorf("failed to marshal entity spans: %w", err)
	}

	ttl := c.config.DefaultTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}

	if err := c.client.Set(ctx, c.key(chunk), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache entity spans: %w", err)
	}
	return nil
}

// Stats returns hit/miss counters.
func (c *EntityCache) Stats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return Stats{Hits: hits, Misses: misses, HitRate: rate}
}

// Close releases the Redis client.
func (c *EntityCache) Close() error {
	return c.client.Close()
}

func (c *EntityCache) key(chunk string) string {
	digest := sha256.Sum256([]byte(chunk))
	prefix := c.config.KeyPrefix
	if prefix == "" {
		prefix = "medscrub:ner"
	}
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(digest[:16]))
}

// maskRedisURL hides credentials for logging.
func maskRedisURL(url string) string {
	if at := strings.LastIndex(url, "@"); at != -1 {
		if scheme := strings.Index(url, "://"); scheme != -1 {
			return url[:scheme+3] + "***" + url[at:]
		}
	}
	return url
}
