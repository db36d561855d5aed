package poller

import (
	"bytes"
	"context"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aethermon/render"
	"aethermon/transport"

	"github.com/cockroachdb/errors"
)

type fakeConn struct {
	open    atomic.Bool
	polls   atomic.Int64
	pollErr error
	msgs    chan []byte
	once    sync.Once
}

func newFakeConn() *fakeConn {
	c := &fakeConn{msgs: make(chan []byte, 8)}
	c.open.Store(true)
	return c
}

func (c *fakeConn) Poll(context.Context) error {
	if c.pollErr != nil {
		return c.pollErr
	}
	c.polls.Add(1)
	return nil
}

func (c *fakeConn) Messages() <-chan []byte { return c.msgs }
func (c *fakeConn) Open() bool              { return c.open.Load() }

func (c *fakeConn) Close() error {
	c.open.Store(false)
	c.once.Do(func() { close(c.msgs) })
	return nil
}

type recordingSurface struct {
	mu    sync.Mutex
	trees []render.Tree
}

func (s *recordingSurface) Commit(t render.Tree) {
	s.mu.Lock()
	s.trees = append(s.trees, t)
	s.mu.Unlock()
}

func (s *recordingSurface) all() []render.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]render.Tree, len(s.trees))
	copy(out, s.trees)
	return out
}

func quietLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.New(&buf, "", 0), &buf
}

func dialTo(conn Connection) DialFunc {
	return func(context.Context) (Connection, error) { return conn, nil }
}

const oneCounter = `{"systemCounters":{"driver":{"bytesSent":100,"bytesReceived":50}},"streams":{}}`

func TestTickWithoutConnectionCommitsDegraded(t *testing.T) {
	surface := &recordingSurface{}
	logger, _ := quietLogger()
	l := New(Options{}, func(context.Context) (Connection, error) {
		return nil, errors.Mark(errors.New("refused"), transport.ErrTransportUnavailable)
	}, surface, logger)

	_ = l.connect(context.Background())
	l.Tick(context.Background())
	l.Tick(context.Background())

	trees := surface.all()
	if len(trees) != 1 || !trees[0].Degraded() {
		t.Fatalf("expected one degraded commit, got %+v", trees)
	}
	if len(trees[0].Rows()) != 0 {
		t.Fatalf("degraded indicator must carry no section content")
	}
	st := l.Stats()
	if st.DegradedTicks != 2 || st.Polls != 0 || st.DialFailures != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestTickPollsOpenConnection(t *testing.T) {
	conn := newFakeConn()
	l := New(Options{}, dialTo(conn), &recordingSurface{}, nil)
	if err := l.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer l.shutdown()

	l.Tick(context.Background())
	l.Tick(context.Background())
	if conn.polls.Load() != 2 || l.Stats().Polls != 2 {
		t.Fatalf("expected 2 polls, got conn=%d stats=%d", conn.polls.Load(), l.Stats().Polls)
	}
}

func TestHandleRendersAndSkipsDuplicates(t *testing.T) {
	surface := &recordingSurface{}
	l := New(Options{}, nil, surface, nil)

	l.handle([]byte(oneCounter))
	l.handle([]byte(oneCounter))

	trees := surface.all()
	if len(trees) != 1 {
		t.Fatalf("expected duplicate payload to be skipped, got %d commits", len(trees))
	}
	if trees[0].Sections[0].Title != "driver" || trees[0].Sections[0].Rows[0].Value != "100" {
		t.Fatalf("unexpected tree: %+v", trees[0])
	}
	if st := l.Stats(); st.Replies != 2 || st.Duplicates != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	// A degraded commit in between forces the same payload to be shown again.
	l.degrade()
	l.handle([]byte(oneCounter))
	if got := len(surface.all()); got != 3 {
		t.Fatalf("expected re-render after degraded, got %d commits", got)
	}
}

func TestHandleDropsMalformedSnapshot(t *testing.T) {
	surface := &recordingSurface{}
	logger, buf := quietLogger()
	l := New(Options{}, nil, surface, logger)

	l.handle([]byte(`{"systemCounters":[]}`))
	if len(surface.all()) != 0 {
		t.Fatalf("malformed snapshot must not be committed")
	}
	if l.Stats().DecodeFailures != 1 {
		t.Fatalf("expected one decode failure")
	}
	if !strings.Contains(buf.String(), "malformed snapshot") {
		t.Fatalf("expected decode failure to be logged, got %q", buf.String())
	}
}

func TestClosedConnectionStaysClosedWithoutRedial(t *testing.T) {
	conn := newFakeConn()
	surface := &recordingSurface{}
	var dials atomic.Int64
	l := New(Options{}, func(context.Context) (Connection, error) {
		dials.Add(1)
		return conn, nil
	}, surface, nil)
	if err := l.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_ = conn.Close()

	l.Tick(context.Background())
	l.Tick(context.Background())
	if dials.Load() != 1 {
		t.Fatalf("expected no redial, got %d dials", dials.Load())
	}
	trees := surface.all()
	if len(trees) != 1 || !trees[0].Degraded() {
		t.Fatalf("expected degraded commit, got %+v", trees)
	}
	l.shutdown()
}

func TestRedialPolicy(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	conns := []*fakeConn{first, second}
	var dials atomic.Int64
	l := New(Options{RedialInterval: time.Second}, func(context.Context) (Connection, error) {
		n := dials.Add(1)
		return conns[n-1], nil
	}, &recordingSurface{}, nil)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	if err := l.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_ = first.Close()

	now = now.Add(500 * time.Millisecond)
	l.Tick(context.Background())
	if dials.Load() != 1 {
		t.Fatalf("redial happened before the interval elapsed")
	}

	now = now.Add(time.Second)
	l.Tick(context.Background())
	if dials.Load() != 2 {
		t.Fatalf("expected redial after interval, got %d dials", dials.Load())
	}
	if second.polls.Load() != 1 {
		t.Fatalf("expected the new connection to be polled")
	}
	l.shutdown()
}

func TestPollFailureDegrades(t *testing.T) {
	conn := newFakeConn()
	conn.pollErr = errors.Mark(errors.New("broken pipe"), transport.ErrTransportUnavailable)
	surface := &recordingSurface{}
	logger, _ := quietLogger()
	l := New(Options{}, dialTo(conn), surface, logger)
	if err := l.connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	l.Tick(context.Background())
	trees := surface.all()
	if len(trees) != 1 || !trees[0].Degraded() {
		t.Fatalf("expected degraded commit after poll failure, got %+v", trees)
	}
	l.shutdown()
}

func TestRunRejectsUnsupportedEndpoint(t *testing.T) {
	l := New(Options{}, Dialer("http://localhost:1/aether", transport.Options{}), &recordingSurface{}, nil)
	err := l.Run(context.Background())
	if !errors.Is(err, transport.ErrUnsupportedEnvironment) {
		t.Fatalf("expected ErrUnsupportedEnvironment, got %v", err)
	}
}

func TestRunDeliversReplies(t *testing.T) {
	conn := newFakeConn()
	surface := &recordingSurface{}
	l := New(Options{Interval: 5 * time.Millisecond}, dialTo(conn), surface, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for conn.polls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	conn.msgs <- []byte(oneCounter)
	for len(surface.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	trees := surface.all()
	if len(trees) == 0 || trees[len(trees)-1].Sections[0].Title != "driver" {
		t.Fatalf("expected rendered commit, got %+v", trees)
	}
	if conn.Open() {
		t.Fatalf("expected Run to close the connection on exit")
	}
}

func TestRunAgainstWebsocketSource(t *testing.T) {
	srv := httptest.NewServer(echoSnapshotHandler(t, oneCounter))
	defer srv.Close()
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/aether"

	surface := &recordingSurface{}
	l := New(Options{Interval: 5 * time.Millisecond}, Dialer(endpoint, transport.Options{}), surface, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	for len(surface.all()) == 0 && ctx.Err() == nil {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done

	trees := surface.all()
	if len(trees) == 0 || trees[0].Degraded() {
		t.Fatalf("expected a rendered commit, got %+v", trees)
	}
	if st := l.Stats(); st.Replies == 0 || st.Polls == 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}
