package ui

import (
	"io"
	"log"
	"sync"
	"time"

	"aethermon/internal/ratelimit"
	"aethermon/render"

	"github.com/dustin/go-humanize"
)

const headlessSummaryEvery = 10 * time.Second

// Headless keeps no display. It logs a short summary of the latest tree at
// most once per summary interval.
type Headless struct {
	logger  *log.Logger
	summary *ratelimit.Counter
	metrics *Metrics

	mu       sync.Mutex
	started  time.Time
	degraded bool
}

// NewHeadless logs through logger, or the standard logger when nil.
func NewHeadless(logger *log.Logger) *Headless {
	if logger == nil {
		logger = log.Default()
	}
	return &Headless{
		logger:  logger,
		summary: ratelimit.NewCounter(headlessSummaryEvery),
		metrics: NewMetrics(),
		started: time.Now(),
	}
}

func (h *Headless) WaitReady() {}

func (h *Headless) Stop() {}

func (h *Headless) Metrics() *Metrics {
	if h == nil {
		return nil
	}
	return h.metrics
}

// SystemWriter is nil: log output stays where it already goes.
func (h *Headless) SystemWriter() io.Writer { return nil }

func (h *Headless) Commit(t render.Tree) {
	if h == nil {
		return
	}
	degraded := t.Degraded()
	h.metrics.ObserveCommit(degraded)
	h.mu.Lock()
	changed := degraded != h.degraded
	h.degraded = degraded
	started := h.started
	h.mu.Unlock()

	_, _, due := h.summary.Inc()
	if !due && !changed {
		return
	}
	if degraded {
		h.logger.Printf("Headless: %s", render.DegradedTitle)
		return
	}
	h.logger.Printf("Headless: %d sections, %d rows, %d highlighted (%s commits since %s)",
		len(t.Sections), len(t.Rows()), t.Highlighted(),
		humanize.Comma(int64(h.metrics.Commits())), humanize.Time(started))
}
