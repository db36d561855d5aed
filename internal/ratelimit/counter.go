// Package ratelimit throttles repetitive log lines such as decode failures.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Counter counts events and admits at most one log line per interval.
// The events swallowed between two admitted lines are reported with the
// next admitted one. Safe for concurrent use.
type Counter struct {
	interval   time.Duration
	now        func() time.Time
	lastLog    atomic.Int64
	total      atomic.Uint64
	suppressed atomic.Uint64
}

// NewCounter allows a log at most once per interval.
// A zero or negative interval disables throttling.
func NewCounter(interval time.Duration) *Counter {
	return &Counter{interval: interval, now: time.Now}
}

// Inc records one event. When logging is allowed it also returns how many
// events were suppressed since the previous admitted line.
func (c *Counter) Inc() (total uint64, suppressed uint64, ok bool) {
	if c == nil {
		return 0, 0, false
	}
	total = c.total.Add(1)
	if c.interval <= 0 {
		return total, 0, true
	}
	now := c.now().UnixNano()
	last := c.lastLog.Load()
	if last != 0 && now-last < c.interval.Nanoseconds() {
		c.suppressed.Add(1)
		return total, 0, false
	}
	if c.lastLog.CompareAndSwap(last, now) {
		return total, c.suppressed.Swap(0), true
	}
	c.suppressed.Add(1)
	return total, 0, false
}

// Total returns the number of events recorded.
func (c *Counter) Total() uint64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}
