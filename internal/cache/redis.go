package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/lexrag/internal/model"
)

// redisKeyPrefix namespaces every key this service writes into the shared
// Redis instance.
const redisKeyPrefix = "rag_context:"

// RedisCache is the out-of-process, preferred Cache implementation.
type RedisCache struct {
	client *redis.Client
}

// NewRedis builds a RedisCache over an existing client.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

var _ Cache = (*RedisCache)(nil)

func redisKey(queryID string) string {
	return redisKeyPrefix + queryID
}

func (c *RedisCache) Put(ctx context.Context, queryID string, bundle model.RetrievalBundle, ttl time.Duration) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("cache.RedisCache.Put: marshal: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(queryID), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache.RedisCache.Put: %w", err)
	}
	return nil
}

// Get returns (bundle, true, nil) on a hit, (zero, false, nil) on a
// legitimate miss, and (zero, false, err) when Redis itself is unreachable
// or the stored value does not decode — callers must be able to tell "not
// cached" apart from "cache is down" to implement the
// fallback-on-connection-error contract.
func (c *RedisCache) Get(ctx context.Context, queryID string) (model.RetrievalBundle, bool, error) {
	data, err := c.client.Get(ctx, redisKey(queryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.RetrievalBundle{}, false, nil
	}
	if err != nil {
		return model.RetrievalBundle{}, false, fmt.Errorf("cache.RedisCache.Get: %w", err)
	}

	var bundle model.RetrievalBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return model.RetrievalBundle{}, false, fmt.Errorf("cache.RedisCache.Get: unmarshal: %w", err)
	}
	return bundle, true, nil
}
