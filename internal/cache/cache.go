// Package cache implements the Context Cache (C4): a key-value store of
// RetrievalBundles keyed by queryId, with an out-of-process (Redis)
// implementation preferred and an in-process fallback for when Redis is
// unreachable. Both are served behind one Cache interface.
package cache

import (
	"context"
	"time"

	"github.com/connexus-ai/lexrag/internal/model"
)

// Cache is the Context Cache's contract: Put/Get of RetrievalBundles keyed
// by queryId, values expiring after ttl.
type Cache interface {
	Put(ctx context.Context, queryID string, bundle model.RetrievalBundle, ttl time.Duration) error
	Get(ctx context.Context, queryID string) (model.RetrievalBundle, bool, error)
}
