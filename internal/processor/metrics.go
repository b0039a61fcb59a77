package processor

import (
	"sync/atomic"
	"time"
)

// WorkerMetrics tracks dispatch throughput for the health endpoint and
// the periodic stats log. Counters are atomics so hot-path recording
// never takes a lock.
type WorkerMetrics struct {
	dispatched   int64
	failed       int64
	busyNs       int64
	windowOpenNs int64
}

func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		windowOpenNs: time.Now().UnixNano(),
	}
}

func (m *WorkerMetrics) RecordSuccess(duration time.Duration) {
	atomic.AddInt64(&m.dispatched, 1)
	atomic.AddInt64(&m.busyNs, int64(duration))
}

func (m *WorkerMetrics) RecordFailure() {
	atomic.AddInt64(&m.failed, 1)
}

// Snapshot reports counters accumulated since the last Reset.
func (m *WorkerMetrics) Snapshot() map[string]interface{} {
	dispatched := atomic.LoadInt64(&m.dispatched)
	failed := atomic.LoadInt64(&m.failed)
	busyNs := atomic.LoadInt64(&m.busyNs)
	openedNs := atomic.LoadInt64(&m.windowOpenNs)

	elapsed := time.Since(time.Unix(0, openedNs)).Seconds()

	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(dispatched) / elapsed
	}

	avgHandle := time.Duration(0)
	if dispatched > 0 {
		avgHandle = time.Duration(busyNs / dispatched)
	}

	return map[string]interface{}{
		"dispatched_total":   dispatched,
		"failed_total":       failed,
		"dispatch_per_sec":   throughput,
		"avg_dispatch_ms":    avgHandle.Milliseconds(),
		"window_age_seconds": elapsed,
	}
}

func (m *WorkerMetrics) Reset() {
	atomic.StoreInt64(&m.dispatched, 0)
	atomic.StoreInt64(&m.failed, 0)
	atomic.StoreInt64(&m.busyNs, 0)
	atomic.StoreInt64(&m.windowOpenNs, time.Now().UnixNano())
}
