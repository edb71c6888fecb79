package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRing_SnapshotEmptyBuffer(t *testing.T) {
	r := newRing()
	s := r.snapshot()
	if s.Count != 0 {
		t.Fatalf("expected empty snapshot, got %+v", s)
	}
}

func TestRing_RecordAndSnapshot(t *testing.T) {
	r := newRing()
	r.record(10)
	r.record(20)
	r.record(30)

	s := r.snapshot()
	if s.Count != 3 || s.Avg != 20 || s.Min != 10 || s.Max != 30 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
}

func TestRing_OverflowOverwritesOldest(t *testing.T) {
	r := newRing()
	for i := 0; i < ringBufferLen+10; i++ {
		r.record(float64(i))
	}
	s := r.snapshot()
	if s.Count != ringBufferLen {
		t.Fatalf("expected count capped at %d, got %d", ringBufferLen, s.Count)
	}
	if s.Min != 10 {
		t.Fatalf("expected oldest 10 samples overwritten, min=%v", s.Min)
	}
	if s.Max != float64(ringBufferLen+9) {
		t.Fatalf("unexpected max: %v", s.Max)
	}
}

func TestRing_ConcurrentRecordDoesNotTear(t *testing.T) {
	r := newRing()
	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.record(1)
			}
		}()
	}
	wg.Wait()
	s := r.snapshot()
	if s.Count != ringBufferLen {
		t.Fatalf("expected buffer to fill to capacity, got %d", s.Count)
	}
}

func TestCollector_SnapshotAggregatesCacheHitRate(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordCacheMiss()

	s := c.Snapshot()
	if s.CacheHitRate != 0.75 {
		t.Fatalf("expected hit rate 0.75, got %v", s.CacheHitRate)
	}
}

func TestCollector_SnapshotTracksSuccessAndFailure(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.RecordSuccess()
	c.RecordSuccess()
	c.RecordFailure()

	s := c.Snapshot()
	if s.SuccessCount != 2 || s.FailureCount != 1 {
		t.Fatalf("unexpected counts: success=%d failure=%d", s.SuccessCount, s.FailureCount)
	}
}

func TestCollector_StepTimeIsPerStepName(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.RecordStepTime("embed", 10)
	c.RecordStepTime("embed", 20)
	c.RecordStepTime("retrieve", 5)

	s := c.Snapshot()
	if s.StepTime["embed"].Count != 2 {
		t.Fatalf("expected 2 embed samples, got %+v", s.StepTime["embed"])
	}
	if s.StepTime["retrieve"].Count != 1 {
		t.Fatalf("expected 1 retrieve sample, got %+v", s.StepTime["retrieve"])
	}
}
