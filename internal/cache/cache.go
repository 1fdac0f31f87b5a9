// Package cache layers a Redis outcome cache in front of the gateway. Only
// successful outcomes are cached, keyed by tenant and normalized question, so
// a tenant can never be served another tenant's answer.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/profitpulse/query-gateway/internal/errors"
	"github.com/profitpulse/query-gateway/internal/gateway"
	"github.com/profitpulse/query-gateway/internal/observability"
)

const keyPrefix = "outcome:"

// Cache decorates an Asker
type Cache struct {
	next   gateway.Asker
	redis  *redis.Client
	ttl    time.Duration
	logger *observability.Logger
}

// New creates a cache in front of next. Outcomes expire after ttl.
func New(next gateway.Asker, redisClient *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		next:   next,
		redis:  redisClient,
		ttl:    ttl,
		logger: observability.NewLogger("cache"),
	}
}

// Key returns the cache key of a request. The tenant is part of the key in
// clear so Invalidate can find a tenant's entries; braces keep one tenant's
// pattern from matching another tenant whose id shares a prefix. Only runs of
// whitespace are collapsed: case can change the literal a question implies.
func Key(req gateway.Request) string {
	normalized := strings.Join(strings.Fields(req.Question), " ")
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s{%s}:%s", keyPrefix, req.TenantID, hex.EncodeToString(sum[:]))
}

// Ask serves a cached outcome when one exists and asks next otherwise
func (c *Cache) Ask(ctx context.Context, req gateway.Request) gateway.Outcome {
	start := time.Now()
	key := Key(req)

	if outcome, ok := c.get(ctx, key); ok {
		outcome.Cached = true
		observability.RecordOutcomeMetrics(string(outcome.Status), "", true, time.Since(start))
		c.logger.Debug(ctx, "Cache hit for question", map[string]interface{}{"row_count": outcome.RowCount})
		return outcome
	}

	outcome := c.next.Ask(ctx, req)
	if outcome.Succeeded() {
		c.set(ctx, key, outcome)
	}
	return outcome
}

func (c *Cache) get(ctx context.Context, key string) (gateway.Outcome, bool) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return gateway.Outcome{}, false
	}
	if err != nil {
		c.logger.Warn(ctx, "Cache read failed", map[string]interface{}{
			"code":  errors.ErrCodeCacheRead,
			"error": err.Error(),
		})
		return gateway.Outcome{}, false
	}

	var outcome gateway.Outcome
	if err := json.Unmarshal(data, &outcome); err != nil || !outcome.Succeeded() {
		c.logger.Warn(ctx, "Dropping unreadable cache entry", map[string]interface{}{"code": errors.ErrCodeCacheRead})
		c.redis.Del(ctx, key)
		return gateway.Outcome{}, false
	}
	return outcome, true
}

func (c *Cache) set(ctx context.Context, key string, outcome gateway.Outcome) {
	data, err := json.Marshal(outcome)
	if err != nil {
		c.logger.Error(ctx, "Failed to encode outcome for cache", err, nil)
		return
	}

	// the caller may have gone; the answer is still worth keeping
	if err := c.redis.Set(context.WithoutCancel(ctx), key, data, c.ttl).Err(); err != nil {
		c.logger.Warn(ctx, "Cache write failed", map[string]interface{}{
			"code":  errors.ErrCodeCacheWrite,
			"error": err.Error(),
		})
	}
}

// Invalidate removes every cached outcome of a tenant, for example after the
// tenant's facts were re-ingested. It returns the number of removed entries.
func (c *Cache) Invalidate(ctx context.Context, tenantID string) (int, error) {
	pattern := fmt.Sprintf("%s{%s}:*", keyPrefix, tenantID)

	removed := 0
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		n, err := c.redis.Del(ctx, iter.Val()).Result()
		if err != nil {
			return removed, errors.Wrap(err, errors.ErrCodeCacheWrite, "Failed to invalidate cached answers")
		}
		removed += int(n)
	}
	if err := iter.Err(); err != nil {
		return removed, errors.Wrap(err, errors.ErrCodeCacheRead, "Failed to scan cached answers")
	}
	return removed, nil
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}
