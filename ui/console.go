package ui

import (
	"bytes"
	"io"
	"log"
	"sync"

	"aethermon/render"
)

const clearScreen = "\x1b[2J\x1b[H"

// Console writes every committed tree as plain text, optionally clearing the
// terminal first. Recent system log lines are printed under the tree.
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	clear     bool
	system    lineRing
	renderBuf bytes.Buffer
	last      render.Tree
	metrics   *Metrics
	writer    *paneWriter
}

// Purpose: Construct the plain-text console surface.
// Key aspects: Keeps systemLines recent log lines to reprint under each tree.
// Upstream: surface selection in main.
// Downstream: newPaneWriter.
func NewConsole(out io.Writer, clear bool, systemLines int) *Console {
	c := &Console{
		out:     out,
		clear:   clear,
		system:  newLineRing(systemLines),
		metrics: NewMetrics(),
	}
	c.writer = newPaneWriter(c.appendSystem)
	return c
}

func (c *Console) WaitReady() {}

func (c *Console) Stop() {}

func (c *Console) Metrics() *Metrics {
	if c == nil {
		return nil
	}
	return c.metrics
}

// Purpose: Replace the console output with t.
// Key aspects: Builds the frame in one buffer and writes it with a single call;
// logs only after the lock is released since the log may feed this console.
// Upstream: poller commit path.
// Downstream: writeFrameLocked, render.Text.
func (c *Console) Commit(t render.Tree) {
	if c == nil {
		return
	}
	c.metrics.ObserveCommit(t.Degraded())
	c.mu.Lock()
	c.last = t
	err := c.writeFrameLocked()
	c.mu.Unlock()
	if err != nil {
		log.Printf("UI: console write failed: %v", err)
	}
}

func (c *Console) SystemWriter() io.Writer {
	if c == nil {
		return nil
	}
	return c.writer
}

func (c *Console) appendSystem(line string) {
	c.mu.Lock()
	c.system.append(line)
	c.mu.Unlock()
}

func (c *Console) writeFrameLocked() error {
	c.renderBuf.Reset()
	if c.clear {
		c.renderBuf.WriteString(clearScreen)
	}
	if err := render.Text(&c.renderBuf, c.last); err != nil {
		return err
	}
	if c.system.count > 0 {
		c.renderBuf.WriteString("\n---- System ----\n")
		for i := 0; i < c.system.count; i++ {
			c.renderBuf.WriteString(c.system.at(i))
			c.renderBuf.WriteByte('\n')
		}
	}
	if _, err := c.renderBuf.WriteTo(c.out); err != nil {
		return err
	}
	c.metrics.ObserveFrame(0)
	return nil
}
