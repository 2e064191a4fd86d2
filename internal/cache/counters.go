// Package cache keeps live per-session and global detection counters in
// Redis hashes.
package cache

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/events"
)

// Counter accumulates detection counts in Redis
type Counter struct {
	client *redis.Client
	config Config
	logger *zap.Logger
}

// NewCounter connects to Redis and verifies the connection
func NewCounter(config Config, logger *zap.Logger) (*Counter, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	c := NewWithClient(redis.NewClient(opts), config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Detection counters initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", opts.PoolSize),
		zap.Duration("session_ttl", config.SessionTTL))

	return c, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, config Config, logger *zap.Logger) *Counter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	return &Counter{client: client, config: config, logger: logger}
}

func (c *Counter) sessionKey(sessionID int64) string {
	return fmt.Sprintf("%s:session:%d:counts", c.config.KeyPrefix, sessionID)
}

func (c *Counter) totalsKey() string {
	return c.config.KeyPrefix + ":totals"
}

// Record adds n to category for the session and the global totals. A zero
// sessionID only updates the totals.
func (c *Counter) Record(ctx context.Context, sessionID int64, category string, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if sessionID != 0 {
			key := c.sessionKey(sessionID)
			pipe.HIncrBy(ctx, key, category, int64(n))
			if c.config.SessionTTL > 0 {
				pipe.Expire(ctx, key, c.config.SessionTTL)
			}
		}
		pipe.HIncrBy(ctx, c.totalsKey(), category, int64(n))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record detection count: %w", err)
	}
	return nil
}

// ConsumeDetection records a pipeline detection event
func (c *Counter) ConsumeDetection(ctx context.Context, e events.Detection) error {
	return c.Record(ctx, e.SessionID, e.Category, e.Count)
}

// Counts returns the per-category counts of a session
func (c *Counter) Counts(ctx context.Context, sessionID int64) (map[string]int64, error) {
	return c.readHash(ctx, c.sessionKey(sessionID))
}

// Totals returns the per-category counts across all sessions
func (c *Counter) Totals(ctx context.Context) (map[string]int64, error) {
	return c.readHash(ctx, c.totalsKey())
}

func (c *Counter) readHash(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	counts := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.logger.Warn("Ignoring malformed counter",
				zap.String("key", key),
				zap.String("field", field))
			continue
		}
		counts[field] = n
	}
	return counts, nil
}

// Clear removes every key under the configured prefix
func (c *Counter) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan counter keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete counter keys: %w", err)
		}
	}

	c.logger.Info("Counters cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Ping checks the connection
func (c *Counter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Counter) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// maskRedisURL hides the password of a Redis URL for logging
func maskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
