package ui

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// LatencyTracker keeps a bounded ring of durations for percentile estimates.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	count   int
	idx     int
}

func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 256
	}
	return &LatencyTracker{samples: make([]time.Duration, size)}
}

func (t *LatencyTracker) Observe(d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.samples[t.idx] = d
	t.idx = (t.idx + 1) % len(t.samples)
	if t.count < len(t.samples) {
		t.count++
	}
	t.mu.Unlock()
}

type LatencySnapshot struct {
	P50 time.Duration
	P99 time.Duration
	N   int
}

func (t *LatencyTracker) Snapshot() LatencySnapshot {
	if t == nil {
		return LatencySnapshot{}
	}
	t.mu.Lock()
	values := make([]time.Duration, t.count)
	copy(values, t.samples[:t.count])
	t.mu.Unlock()
	if len(values) == 0 {
		return LatencySnapshot{}
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return LatencySnapshot{
		P50: values[len(values)/2],
		P99: values[int(float64(len(values)-1)*0.99)],
		N:   len(values),
	}
}

// Metrics counts commits and tracks how long a commit waits before it is
// on screen.
type Metrics struct {
	frameDelay *LatencyTracker
	commits    atomic.Uint64
	degraded   atomic.Uint64
	draws      atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{frameDelay: NewLatencyTracker(512)}
}

// ObserveCommit counts one committed tree.
func (m *Metrics) ObserveCommit(degraded bool) {
	if m == nil {
		return
	}
	m.commits.Add(1)
	if degraded {
		m.degraded.Add(1)
	}
}

// ObserveFrame records the delay between queueing and applying a frame.
func (m *Metrics) ObserveFrame(d time.Duration) {
	if m == nil {
		return
	}
	m.draws.Add(1)
	m.frameDelay.Observe(d)
}

func (m *Metrics) FrameDelay() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{}
	}
	return m.frameDelay.Snapshot()
}

func (m *Metrics) Commits() uint64 {
	if m == nil {
		return 0
	}
	return m.commits.Load()
}

func (m *Metrics) DegradedCommits() uint64 {
	if m == nil {
		return 0
	}
	return m.degraded.Load()
}

// Draws counts applied frames; with coalescing this trails Commits.
func (m *Metrics) Draws() uint64 {
	if m == nil {
		return 0
	}
	return m.draws.Load()
}
