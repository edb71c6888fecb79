// Package ratelimit implements a coarse per-key sliding-window limiter
// guarding the query-submission endpoints named in spec.md §6
// (`rateLimitPerMinute`): a caller firing off fast-pipeline questions
// faster than the configured window allows gets throttled before the
// request ever reaches the Pipeline Orchestrator.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures the sliding-window limiter.
type Config struct {
	// MaxRequests is the maximum number of requests allowed within Window.
	MaxRequests int
	// Window is the sliding window duration (e.g. one minute).
	Window time.Duration
	// CleanupInterval is how often stale keys are purged. Defaults to 5 minutes.
	CleanupInterval time.Duration
}

// window holds the request timestamps observed for one key within Window.
type window struct {
	timestamps []time.Time
}

// Limiter is a per-key sliding-window limiter: one mutex guards the whole
// key map, the same coarse-locking shape as this module's in-process cache
// fallback (internal/cache.InProcessCache) rather than a lock per entry —
// question submissions are low-volume enough per process that contention
// on a single mutex is a non-issue, and it keeps Allow and the cleanup
// sweep trivially consistent with each other.
type Limiter struct {
	config  Config
	mu      sync.Mutex
	entries map[string]*window
	nowFunc func() time.Time
	stopCh  chan struct{}
}

// New creates a Limiter and starts its background cleanup goroutine.
func New(config Config) *Limiter {
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	rl := &Limiter{
		config:  config,
		entries: make(map[string]*window),
		nowFunc: time.Now,
		stopCh:  make(chan struct{}),
	}

	go rl.cleanup()
	return rl
}

// Stop halts the background cleanup goroutine.
func (rl *Limiter) Stop() {
	close(rl.stopCh)
}

// cleanup periodically drops keys whose whole window has expired, so a
// stream of one-off callers (e.g. unauthenticated requests keyed by remote
// address, per ratelimit.Middleware) doesn't leak memory forever.
func (rl *Limiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			now := rl.nowFunc()
			cutoff := now.Add(-rl.config.Window)

			rl.mu.Lock()
			for key, w := range rl.entries {
				w.timestamps = pruneExpired(w.timestamps, cutoff)
				if len(w.timestamps) == 0 {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Allow reports whether key (a user ID, or a remote address for
// unauthenticated callers) is within the rate limit and, if so, records a
// new request for it. Returns (allowed, retryAfterSeconds); retryAfterSeconds
// is only meaningful when allowed is false.
func (rl *Limiter) Allow(key string) (bool, int) {
	now := rl.nowFunc()
	cutoff := now.Add(-rl.config.Window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.entries[key]
	if !ok {
		w = &window{}
		rl.entries[key] = w
	}
	w.timestamps = pruneExpired(w.timestamps, cutoff)

	if len(w.timestamps) >= rl.config.MaxRequests {
		oldest := w.timestamps[0]
		retryAfter := int(oldest.Add(rl.config.Window).Sub(now).Seconds()) + 1
		if retryAfter < 1 {
			retryAfter = 1
		}
		return false, retryAfter
	}

	w.timestamps = append(w.timestamps, now)
	return true, 0
}

// pruneExpired drops every timestamp strictly before cutoff, keeping the
// remainder in place (no new allocation on the common no-op case).
func pruneExpired(timestamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for _, t := range timestamps {
		if !t.Before(cutoff) {
			timestamps[idx] = t
			idx++
		}
	}
	return timestamps[:idx]
}
