package ui

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aethermon/internal/ratelimit"
	"aethermon/render"

	"github.com/cockroachdb/errors"
)

// HTMLFile publishes every committed tree as a standalone HTML page. The page
// is written to a temp file and renamed over path so readers never see a
// partial document.
type HTMLFile struct {
	path    string
	opts    render.PageOptions
	mu      sync.Mutex
	metrics *Metrics
	fails   *ratelimit.Counter
	writer  *paneWriter
}

func NewHTMLFile(path string, opts render.PageOptions) *HTMLFile {
	h := &HTMLFile{
		path:    path,
		opts:    opts,
		metrics: NewMetrics(),
		fails:   ratelimit.NewCounter(30 * time.Second),
	}
	h.writer = newPaneWriter(func(line string) {
		os.Stderr.WriteString(line + "\n")
	})
	return h
}

func (h *HTMLFile) WaitReady() {}

func (h *HTMLFile) Stop() {}

func (h *HTMLFile) Metrics() *Metrics {
	if h == nil {
		return nil
	}
	return h.metrics
}

// SystemWriter sends log lines to stderr; the page only carries the tree.
func (h *HTMLFile) SystemWriter() io.Writer {
	if h == nil {
		return nil
	}
	return h.writer
}

func (h *HTMLFile) Commit(t render.Tree) {
	if h == nil {
		return
	}
	h.metrics.ObserveCommit(t.Degraded())
	start := time.Now()
	h.mu.Lock()
	err := h.publish(t)
	h.mu.Unlock()
	if err != nil {
		if total, suppressed, ok := h.fails.Inc(); ok {
			log.Printf("UI: html publish failed (%d total, %d suppressed): %v", total, suppressed, err)
		}
		return
	}
	h.metrics.ObserveFrame(time.Since(start))
}

func (h *HTMLFile) publish(t render.Tree) error {
	dir := filepath.Dir(h.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create directory %s", dir)
		}
	}
	tmpFile, err := os.CreateTemp(dir, ".aethermon-*.html.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName)

	if err := render.HTMLPage(tmpFile, t, h.opts); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, "render page")
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "finalize temp file")
	}
	if err := os.Rename(tmpName, h.path); err != nil {
		return errors.Wrapf(err, "replace %s", h.path)
	}
	return nil
}
