package cache

import (
	"context"
	"sync"
	"time"

	"github.com/connexus-ai/lexrag/internal/model"
)

// InProcessCache is the in-process fallback implementation: a mutex-guarded
// map with per-entry expiry and a background cleanup ticker, in the same
// shape as the teacher's query result cache.
type InProcessCache struct {
	mu      sync.RWMutex
	entries map[string]inProcessEntry
	stopCh  chan struct{}
}

type inProcessEntry struct {
	bundle    model.RetrievalBundle
	expiresAt time.Time
}

// NewInProcess creates an InProcessCache and starts its background cleanup.
func NewInProcess() *InProcessCache {
	c := &InProcessCache{
		entries: make(map[string]inProcessEntry),
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

var _ Cache = (*InProcessCache)(nil)

func (c *InProcessCache) Put(_ context.Context, queryID string, bundle model.RetrievalBundle, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[queryID] = inProcessEntry{bundle: bundle, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *InProcessCache) Get(_ context.Context, queryID string) (model.RetrievalBundle, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[queryID]
	c.mu.RUnlock()

	if !ok {
		return model.RetrievalBundle{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, queryID)
		c.mu.Unlock()
		return model.RetrievalBundle{}, false, nil
	}
	return entry.bundle, true, nil
}

// Len returns the number of entries currently held.
func (c *InProcessCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop halts the background cleanup goroutine.
func (c *InProcessCache) Stop() {
	close(c.stopCh)
}

func (c *InProcessCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}
