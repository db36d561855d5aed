package ui

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFrameSchedulerCoalescesLatestPerRegion(t *testing.T) {
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, nil)

	var seq []string
	f.Schedule("streams", func() { seq = append(seq, "s1") })
	f.Schedule("streams", func() { seq = append(seq, "s2") })
	f.Schedule("system", func() { seq = append(seq, "y1") })

	f.flush()

	if len(seq) != 2 {
		t.Fatalf("expected 2 callbacks, got %d (%v)", len(seq), seq)
	}
	if seq[0] != "s2" || seq[1] != "y1" {
		t.Fatalf("unexpected callback order/content: %v", seq)
	}

	f.flush()
	if len(seq) != 2 {
		t.Fatalf("expected no additional callbacks after empty flush, got %v", seq)
	}
}

func TestFrameSchedulerFlushesPendingOnStop(t *testing.T) {
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, nil)
	var called atomic.Uint64

	f.Start()
	f.Schedule("streams", func() { called.Add(1) })
	f.Stop()

	if called.Load() != 1 {
		t.Fatalf("expected pending callback to flush on stop, got %d", called.Load())
	}
}

func TestFrameSchedulerStopIdempotent(t *testing.T) {
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, nil)
	f.Start()
	f.Stop()
	f.Stop()
}

func TestFrameSchedulerStopWithoutStart(t *testing.T) {
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, nil)
	var called atomic.Uint64
	f.Schedule("header", func() { called.Add(1) })
	f.Stop()
	if called.Load() != 1 {
		t.Fatalf("expected inline flush on stop, got %d", called.Load())
	}
}

func TestFrameSchedulerObservesDelay(t *testing.T) {
	var observed atomic.Uint64
	f := newFrameScheduler(nil, 60, 50*time.Millisecond, func(time.Duration) { observed.Add(1) })
	f.Schedule("streams", func() {})
	f.flush()
	if observed.Load() != 1 {
		t.Fatalf("expected one observed frame, got %d", observed.Load())
	}
}
