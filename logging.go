package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"aethermon/config"

	"github.com/cockroachdb/errors"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFilePrefix      = "aethermon-"
	logFileDateLayout  = "2006-01-02"
	maxLogBufferBytes  = 16 * 1024
	logErrorEvery      = time.Minute
)

type lineSink interface {
	WriteLine(line string, now time.Time)
	Close() error
}

// writerSink prints lines to a writer; surfaces take lines without a
// timestamp since they keep their own layout.
type writerSink struct {
	w             io.Writer
	withTimestamp bool
}

func (s *writerSink) WriteLine(line string, now time.Time) {
	if s == nil || s.w == nil {
		return
	}
	if s.withTimestamp {
		line = formatLogTimestamp(now) + " " + line
	}
	_, _ = io.WriteString(s.w, line+"\n")
}

func (s *writerSink) Close() error { return nil }

type logRotateHook func(prevDate time.Time, prevPath, newPath string)

// dailyFileSink appends to one file per UTC day and prunes files older than
// the retention window whenever it opens a new one.
type dailyFileSink struct {
	mu            sync.Mutex
	dir           string
	retentionDays int
	currentDate   string
	currentPath   string
	file          *os.File
	lastErrorAt   time.Time
	rotateHook    logRotateHook
}

// Purpose: Prepare the log directory and prune old files.
// Key aspects: A failed prune is reported but does not block startup.
// Upstream: setupLogging.
// Downstream: os.MkdirAll, cleanupOldLogs.
func newDailyFileSink(dir string, retentionDays int) (*dailyFileSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create log directory %q", dir)
	}
	if err := cleanupOldLogs(dir, time.Now().UTC(), retentionDays); err != nil {
		fmt.Fprintf(os.Stderr, "Logging: cleanup failed for %s: %v\n", dir, err)
	}
	return &dailyFileSink{dir: dir, retentionDays: retentionDays}, nil
}

// Purpose: Append a timestamped line to today's file.
// Key aspects: Rotates on UTC day change; the rotate hook runs after the
// lock is released so it may log.
// Upstream: logRouter.Write.
// Downstream: rotateLocked, os.File.WriteString.
func (s *dailyFileSink) WriteLine(line string, now time.Time) {
	if s == nil {
		return
	}
	now = now.UTC()
	date := now.Format(logFileDateLayout)

	var rotated rotation
	s.mu.Lock()
	if s.file == nil || s.currentDate != date {
		rotated = s.rotateLocked(date, now)
	}
	if s.file != nil {
		if _, err := s.file.WriteString(formatLogTimestamp(now) + " " + line + "\n"); err != nil {
			s.reportErrorLocked(now, errors.Wrap(err, "write failed"))
		}
	}
	s.mu.Unlock()

	if rotated.hook != nil && !rotated.prevDate.IsZero() {
		rotated.hook(rotated.prevDate, rotated.prevPath, rotated.newPath)
	}
}

func (s *dailyFileSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.currentDate = ""
	s.currentPath = ""
	return err
}

func (s *dailyFileSink) SetRotateHook(hook logRotateHook) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.rotateHook = hook
	s.mu.Unlock()
}

type rotation struct {
	hook     logRotateHook
	prevDate time.Time
	prevPath string
	newPath  string
}

func (s *dailyFileSink) rotateLocked(date string, now time.Time) rotation {
	var r rotation
	if s.currentDate != "" && s.currentDate != date {
		if parsed, err := time.ParseInLocation(logFileDateLayout, s.currentDate, time.UTC); err == nil {
			r.prevDate = parsed
		}
		r.prevPath = s.currentPath
		r.hook = s.rotateHook
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.reportErrorLocked(now, errors.Wrapf(err, "create log directory %q", s.dir))
		return rotation{}
	}
	path := filepath.Join(s.dir, logFileNameForDate(now))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.reportErrorLocked(now, errors.Wrapf(err, "open %s", path))
		return rotation{}
	}
	s.file = file
	s.currentDate = date
	s.currentPath = path
	r.newPath = path
	if err := cleanupOldLogs(s.dir, now, s.retentionDays); err != nil {
		s.reportErrorLocked(now, errors.Wrap(err, "cleanup failed"))
	}
	return r
}

// reportErrorLocked goes straight to stderr; logging through the router
// here would recurse into this sink.
func (s *dailyFileSink) reportErrorLocked(now time.Time, err error) {
	if err == nil {
		return
	}
	if !s.lastErrorAt.IsZero() && now.Sub(s.lastErrorAt) < logErrorEvery {
		return
	}
	s.lastErrorAt = now
	fmt.Fprintf(os.Stderr, "Logging: %v\n", err)
}

// logRouter is the log package output. It splits writes into lines and
// hands each line to the surface sink and the file sink.
type logRouter struct {
	mu      sync.Mutex
	buf     []byte
	surface lineSink
	file    lineSink
	now     func() time.Time
}

func newLogRouter(surface, file lineSink) *logRouter {
	return &logRouter{surface: surface, file: file, now: time.Now}
}

// Purpose: Build the router from config.
// Key aspects: Always returns a usable router, even when the file sink
// cannot be created.
// Upstream: main startup.
// Downstream: newDailyFileSink.
func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logRouter, error) {
	router := newLogRouter(&writerSink{w: console, withTimestamp: true}, nil)
	if !cfg.Enabled {
		return router, nil
	}
	sink, err := newDailyFileSink(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return router, err
	}
	router.SetFileSink(sink)
	return router, nil
}

// SetSurfaceSink redirects on-screen log lines, e.g. into a dashboard pane.
// A nil writer silences them; the file sink is unaffected.
func (r *logRouter) SetSurfaceSink(w io.Writer, withTimestamp bool) {
	if r == nil {
		return
	}
	var sink lineSink
	if w != nil {
		sink = &writerSink{w: w, withTimestamp: withTimestamp}
	}
	r.mu.Lock()
	r.surface = sink
	r.mu.Unlock()
}

func (r *logRouter) SetFileSink(sink lineSink) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.file = sink
	r.mu.Unlock()
}

func (r *logRouter) SetRotateHook(hook logRotateHook) {
	if r == nil {
		return
	}
	r.mu.Lock()
	sink := r.file
	r.mu.Unlock()
	if setter, ok := sink.(interface{ SetRotateHook(logRotateHook) }); ok {
		setter.SetRotateHook(hook)
	}
}

func (r *logRouter) Write(p []byte) (int, error) {
	if r == nil {
		return len(p), nil
	}
	r.mu.Lock()
	r.buf = append(r.buf, p...)
	data := r.buf
	var lines []string
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	if len(data) > maxLogBufferBytes {
		if trimmed := string(bytes.TrimRight(data, "\r")); trimmed != "" {
			lines = append(lines, trimmed)
		}
		data = data[:0]
	}
	r.buf = append(r.buf[:0], data...)
	surface, file := r.surface, r.file
	r.mu.Unlock()

	if len(lines) == 0 {
		return len(p), nil
	}
	now := r.now().UTC()
	for _, line := range lines {
		if surface != nil {
			surface.WriteLine(line, now)
		}
		if file != nil {
			file.WriteLine(line, now)
		}
	}
	return len(p), nil
}

// WriteFileOnly records line in the log file without showing it on the
// surface. It is a no-op when file logging is off.
func (r *logRouter) WriteFileOnly(line string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	file := r.file
	r.mu.Unlock()
	if file != nil {
		file.WriteLine(line, r.now().UTC())
	}
}

func (r *logRouter) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	surface, file := r.surface, r.file
	r.mu.Unlock()
	if surface != nil {
		_ = surface.Close()
	}
	if file != nil {
		return file.Close()
	}
	return nil
}

func formatLogTimestamp(now time.Time) string {
	return now.UTC().Format(logTimestampLayout)
}

func logFileNameForDate(now time.Time) string {
	return logFilePrefix + now.UTC().Format(logFileDateLayout) + ".log"
}

func parseLogFileDate(name string) (time.Time, bool) {
	if filepath.Ext(name) != ".log" || !strings.HasPrefix(name, logFilePrefix) {
		return time.Time{}, false
	}
	base := strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), ".log")
	parsed, err := time.ParseInLocation(logFileDateLayout, base, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// cleanupOldLogs removes dated log files outside the retention window.
// Files that do not follow the naming scheme are left alone.
func cleanupOldLogs(dir string, now time.Time, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	cutoff := dateOnly(now.UTC()).AddDate(0, 0, -(retentionDays - 1))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		date, ok := parseLogFileDate(entry.Name())
		if !ok {
			continue
		}
		if date.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
