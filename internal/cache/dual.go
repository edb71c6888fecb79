package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/connexus-ai/lexrag/internal/model"
)

// dualCache writes to both the preferred (Redis) and fallback (in-process)
// stores. Reads try the preferred store first; on a legitimate miss, the
// fallback is also consulted (in case Redis itself was unreachable when an
// earlier Put happened, or it evicted the key independently); on a
// connection error from the preferred store, the read transparently falls
// back, with a warning logged, per the spec's "never fatal" contract.
type dualCache struct {
	preferred Cache
	fallback  *InProcessCache
}

// New wraps a preferred (Redis) and fallback (in-process) cache into a
// single Cache that degrades gracefully when the preferred store is down.
func New(preferred Cache, fallback *InProcessCache) Cache {
	return &dualCache{preferred: preferred, fallback: fallback}
}

var _ Cache = (*dualCache)(nil)

func (d *dualCache) Put(ctx context.Context, queryID string, bundle model.RetrievalBundle, ttl time.Duration) error {
	if err := d.preferred.Put(ctx, queryID, bundle, ttl); err != nil {
		slog.Warn("[cache] preferred store unreachable on write, falling back to in-process", "error", err.Error())
	}
	// Always write the fallback too: a write is never silently dropped just
	// because the preferred store happened to be unreachable.
	return d.fallback.Put(ctx, queryID, bundle, ttl)
}

func (d *dualCache) Get(ctx context.Context, queryID string) (model.RetrievalBundle, bool, error) {
	bundle, ok, err := d.preferred.Get(ctx, queryID)
	if err != nil {
		slog.Warn("[cache] preferred store unreachable on read, falling back to in-process", "error", err.Error())
		return d.fallback.Get(ctx, queryID)
	}
	if ok {
		return bundle, true, nil
	}
	// Legitimate miss on the preferred store: still check the fallback,
	// since it may hold a value the preferred store evicted independently.
	return d.fallback.Get(ctx, queryID)
}
