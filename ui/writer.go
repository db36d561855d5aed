package ui

import (
	"bytes"
	"log"
	"sync"
	"time"
)

const (
	paneWriterMaxBytes  = 64 * 1024
	paneWriterDropEvery = 30 * time.Second
)

// paneWriter splits written bytes into lines for a pane. A partial line is
// held until its newline arrives; the held bytes are bounded.
type paneWriter struct {
	sink func(line string)
	// drop receives the drop notice; it must not write back into this pane.
	drop func(format string, args ...any)

	mu           sync.Mutex
	buf          []byte
	droppedBytes uint64
	lastDropLog  time.Time
	now          func() time.Time
}

func newPaneWriter(sink func(string)) *paneWriter {
	return &paneWriter{sink: sink, drop: log.Printf, now: time.Now}
}

func (w *paneWriter) Write(p []byte) (int, error) {
	if w == nil || w.sink == nil {
		return len(p), nil
	}
	var logDrop bool
	var dropBytes, totalDropped uint64
	w.mu.Lock()
	now := w.now().UTC()
	w.buf = append(w.buf, p...)
	if excess := len(w.buf) - paneWriterMaxBytes; excess > 0 {
		w.buf = w.buf[excess:]
		w.droppedBytes += uint64(excess)
		dropBytes = uint64(excess)
		totalDropped = w.droppedBytes
		if w.lastDropLog.IsZero() || now.Sub(w.lastDropLog) >= paneWriterDropEvery {
			w.lastDropLog = now
			logDrop = true
		}
	}
	var lines []string
	data := w.buf
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	w.buf = append(w.buf[:0], data...)
	w.mu.Unlock()

	for _, line := range lines {
		w.sink(line)
	}
	if logDrop && w.drop != nil {
		w.drop("UI: pane writer dropped %d bytes (total %d) waiting for a newline", dropBytes, totalDropped)
	}
	return len(p), nil
}
