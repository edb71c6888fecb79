// Package metrics implements the Metrics Collector (C6): bounded
// in-process ring buffers for latency/outcome sampling, snapshotted on
// demand, plus a Prometheus export for external scraping.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the Metrics Collector (C6). Safe for concurrent use.
type Collector struct {
	generationTime *ring
	pipelineTime   *ring
	stepTime       map[string]*ring
	stepTimeMu     sync.RWMutex
	memoryPercent  *ring

	successCount int64
	failureCount int64
	cacheHits    int64
	cacheMisses  int64
	countersMu   sync.Mutex

	prom *promMetrics
}

// New builds a Collector and registers its Prometheus collectors against reg.
func New(reg prometheus.Registerer) *Collector {
	return &Collector{
		generationTime: newRing(),
		pipelineTime:   newRing(),
		stepTime:       make(map[string]*ring),
		memoryPercent:  newRing(),
		prom:           newPromMetrics(reg),
	}
}

// RecordGenerationTime samples a model generation latency in milliseconds.
func (c *Collector) RecordGenerationTime(ms float64, model string) {
	c.generationTime.record(ms)
	c.prom.generationSeconds.WithLabelValues(model).Observe(ms / 1000)
}

// RecordPipelineTime samples an end-to-end pipeline latency in milliseconds.
func (c *Collector) RecordPipelineTime(ms float64, tier string) {
	c.pipelineTime.record(ms)
	c.prom.pipelineSeconds.WithLabelValues(tier).Observe(ms / 1000)
}

// RecordStepTime samples a named pipeline step's latency in milliseconds.
func (c *Collector) RecordStepTime(step string, ms float64) {
	c.stepTimeMu.Lock()
	r, ok := c.stepTime[step]
	if !ok {
		r = newRing()
		c.stepTime[step] = r
	}
	c.stepTimeMu.Unlock()

	r.record(ms)
	c.prom.stepSeconds.WithLabelValues(step).Observe(ms / 1000)
}

// RecordMemoryPercent samples host memory utilization (0..100).
func (c *Collector) RecordMemoryPercent(pct float64) {
	c.memoryPercent.record(pct)
	c.prom.memoryPercent.Set(pct)
}

// RecordSuccess/RecordFailure count pipeline outcomes.
func (c *Collector) RecordSuccess() {
	c.countersMu.Lock()
	c.successCount++
	c.countersMu.Unlock()
	c.prom.outcomesTotal.WithLabelValues("success").Inc()
}

func (c *Collector) RecordFailure() {
	c.countersMu.Lock()
	c.failureCount++
	c.countersMu.Unlock()
	c.prom.outcomesTotal.WithLabelValues("failure").Inc()
}

// RecordCacheHit/RecordCacheMiss count Context Cache outcomes.
func (c *Collector) RecordCacheHit() {
	c.countersMu.Lock()
	c.cacheHits++
	c.countersMu.Unlock()
	c.prom.cacheOutcomesTotal.WithLabelValues("hit").Inc()
}

func (c *Collector) RecordCacheMiss() {
	c.countersMu.Lock()
	c.cacheMisses++
	c.countersMu.Unlock()
	c.prom.cacheOutcomesTotal.WithLabelValues("miss").Inc()
}

// Summary is a full point-in-time view of the collector's state, the shape
// returned by a read-only metrics endpoint.
type Summary struct {
	GenerationTime Snapshot
	PipelineTime   Snapshot
	StepTime       map[string]Snapshot
	MemoryPercent  Snapshot
	SuccessCount   int64
	FailureCount   int64
	CacheHitRate   float64
}

// Snapshot returns a thread-safe, tear-free point-in-time view of every
// stream.
func (c *Collector) Snapshot() Summary {
	c.stepTimeMu.RLock()
	stepSnap := make(map[string]Snapshot, len(c.stepTime))
	for name, r := range c.stepTime {
		stepSnap[name] = r.snapshot()
	}
	c.stepTimeMu.RUnlock()

	c.countersMu.Lock()
	success, failure, hits, misses := c.successCount, c.failureCount, c.cacheHits, c.cacheMisses
	c.countersMu.Unlock()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Summary{
		GenerationTime: c.generationTime.snapshot(),
		PipelineTime:   c.pipelineTime.snapshot(),
		StepTime:       stepSnap,
		MemoryPercent:  c.memoryPercent.snapshot(),
		SuccessCount:   success,
		FailureCount:   failure,
		CacheHitRate:   hitRate,
	}
}

// RunPeriodicLogger logs a Summary every interval (default 300s when
// interval <= 0) until ctx is cancelled. Intended as an optional
// operational aid alongside the read-only metrics endpoint.
func (c *Collector) RunPeriodicLogger(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Snapshot()
			slog.Info("[metrics] periodic snapshot",
				"generation_avg_ms", s.GenerationTime.Avg,
				"pipeline_avg_ms", s.PipelineTime.Avg,
				"success_count", s.SuccessCount,
				"failure_count", s.FailureCount,
				"cache_hit_rate", s.CacheHitRate,
			)
		}
	}
}
