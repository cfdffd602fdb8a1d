package automation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"sdrops/internal/constants"
	"sdrops/internal/logger"
	"sdrops/pkg/metrics"
)

// AnalyticsCache stores computed snapshots. A miss and a failure look the same
// to callers.
type AnalyticsCache interface {
	Get(ctx context.Context, organizationID string, filter AnalyticsFilter) (*Analytics, bool)
	Set(ctx context.Context, organizationID string, filter AnalyticsFilter, snapshot *Analytics)
}

type RedisAnalyticsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisAnalyticsCache(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisAnalyticsCache {
	return &RedisAnalyticsCache{client: client, ttl: ttl, logger: log}
}

func analyticsCacheKey(organizationID string, filter AnalyticsFilter) string {
	raw, _ := json.Marshal(filter)
	sum := sha256.Sum256(raw)
	return constants.CacheKeyAnalytics + organizationID + ":" + hex.EncodeToString(sum[:])
}

func (c *RedisAnalyticsCache) Get(ctx context.Context, organizationID string, filter AnalyticsFilter) (*Analytics, bool) {
	key := analyticsCacheKey(organizationID, filter)

	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.IncAnalyticsCache("miss")
		return nil, false
	}
	if err != nil {
		metrics.IncAnalyticsCache("error")
		c.logger.WarnwCtx(ctx, "Analytics cache read failed", "key", key, "error", err)
		return nil, false
	}

	var snapshot Analytics
	if err := json.Unmarshal(val, &snapshot); err != nil {
		metrics.IncAnalyticsCache("error")
		c.logger.WarnwCtx(ctx, "Analytics cache entry is corrupt", "key", key, "error", err)
		return nil, false
	}

	metrics.IncAnalyticsCache("hit")
	return &snapshot, true
}

func (c *RedisAnalyticsCache) Set(ctx context.Context, organizationID string, filter AnalyticsFilter, snapshot *Analytics) {
	key := analyticsCacheKey(organizationID, filter)

	raw, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.WarnwCtx(ctx, "Failed to encode analytics snapshot", "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WarnwCtx(ctx, "Analytics cache write failed", "key", key, "error", err)
	}
}
