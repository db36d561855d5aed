// Package poller drives snapshot acquisition on a fixed cadence and commits
// the rendered result to a surface.
package poller

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"aethermon/internal/ratelimit"
	"aethermon/render"
	"aethermon/snapshot"
	"aethermon/transport"

	"github.com/cockroachdb/errors"
	"github.com/zeebo/xxh3"
)

const (
	DefaultInterval   = 100 * time.Millisecond
	logThrottleWindow = 10 * time.Second
)

// Connection is the part of transport.Conn the loop depends on.
type Connection interface {
	Poll(ctx context.Context) error
	Messages() <-chan []byte
	Open() bool
	Close() error
}

// DialFunc opens a new connection to the telemetry source.
type DialFunc func(ctx context.Context) (Connection, error)

// Surface receives every committed tree.
type Surface interface {
	Commit(render.Tree)
}

// Options configures a Loop.
type Options struct {
	// Interval between polls. Zero selects DefaultInterval.
	Interval time.Duration
	// RedialInterval enables reconnecting a closed connection at most once
	// per interval. Zero keeps a closed connection closed.
	RedialInterval time.Duration
}

// Stats is a point-in-time copy of the loop counters.
type Stats struct {
	Ticks          uint64
	Polls          uint64
	Replies        uint64
	Commits        uint64
	DecodeFailures uint64
	DegradedTicks  uint64
	Duplicates     uint64
	Dials          uint64
	DialFailures   uint64
}

// Loop polls one connection at a time. Ticks never wait for replies; a
// reader goroutine decodes, renders and commits whatever arrives, so the
// last commit wins.
type Loop struct {
	opts    Options
	dial    DialFunc
	surface Surface
	logger  *log.Logger

	connMu   sync.Mutex
	conn     Connection
	lastDial time.Time
	now      func() time.Time
	wg       sync.WaitGroup

	commitMu sync.Mutex
	degraded bool
	hasLast  bool
	lastHash uint64

	ticks         atomic.Uint64
	polls         atomic.Uint64
	replies       atomic.Uint64
	commits       atomic.Uint64
	degradedTicks atomic.Uint64
	duplicates    atomic.Uint64
	dials         atomic.Uint64

	decodeFailures *ratelimit.Counter
	dialFailures   *ratelimit.Counter
	pollFailures   *ratelimit.Counter
}

// New builds a loop. A nil logger logs through the standard logger.
func New(opts Options, dial DialFunc, surface Surface, logger *log.Logger) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Loop{
		opts:           opts,
		dial:           dial,
		surface:        surface,
		logger:         logger,
		now:            time.Now,
		decodeFailures: ratelimit.NewCounter(logThrottleWindow),
		dialFailures:   ratelimit.NewCounter(logThrottleWindow),
		pollFailures:   ratelimit.NewCounter(logThrottleWindow),
	}
}

// Run dials once and then ticks until ctx is done. It returns an error only
// when the endpoint can never be served (ErrUnsupportedEnvironment); an
// unreachable source shows up as the degraded indicator instead.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.connect(ctx); err != nil && errors.Is(err, transport.ErrUnsupportedEnvironment) {
		return err
	}
	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()
	defer l.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick performs one poll cycle.
func (l *Loop) Tick(ctx context.Context) {
	l.ticks.Add(1)
	conn := l.current()
	if (conn == nil || !conn.Open()) && l.redialDue() {
		_ = l.connect(ctx)
		conn = l.current()
	}
	if conn == nil || !conn.Open() {
		l.degrade()
		return
	}
	if err := conn.Poll(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		if total, suppressed, ok := l.pollFailures.Inc(); ok {
			l.logger.Printf("Poller: poll failed (%d total, %d suppressed): %v", total, suppressed, err)
		}
		l.degrade()
		return
	}
	l.polls.Add(1)
}

func (l *Loop) current() Connection {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return l.conn
}

func (l *Loop) redialDue() bool {
	if l.opts.RedialInterval <= 0 {
		return false
	}
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return l.now().Sub(l.lastDial) >= l.opts.RedialInterval
}

func (l *Loop) connect(ctx context.Context) error {
	l.connMu.Lock()
	l.lastDial = l.now()
	old := l.conn
	l.conn = nil
	l.connMu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	l.dials.Add(1)
	conn, err := l.dial(ctx)
	if err != nil {
		if total, suppressed, ok := l.dialFailures.Inc(); ok {
			l.logger.Printf("Poller: connect failed (%d total, %d suppressed): %v", total, suppressed, err)
		}
		return err
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()
	l.logger.Printf("Poller: connected")

	l.wg.Add(1)
	go l.consume(ctx, conn)
	return nil
}

func (l *Loop) shutdown() {
	l.connMu.Lock()
	conn := l.conn
	l.conn = nil
	l.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	l.wg.Wait()
}

func (l *Loop) consume(ctx context.Context, conn Connection) {
	defer l.wg.Done()
	msgs := conn.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgs:
			if !ok {
				return
			}
			l.handle(payload)
		}
	}
}

// handle turns one reply into a commit. Replies identical to the last
// committed one are skipped while the surface still shows it.
func (l *Loop) handle(payload []byte) {
	l.replies.Add(1)
	sum := xxh3.Hash(payload)

	l.commitMu.Lock()
	dup := l.hasLast && !l.degraded && sum == l.lastHash
	l.commitMu.Unlock()
	if dup {
		l.duplicates.Add(1)
		return
	}

	snap, err := snapshot.Decode(payload)
	if err != nil {
		if total, suppressed, ok := l.decodeFailures.Inc(); ok {
			l.logger.Printf("Poller: dropping malformed snapshot (%d total, %d suppressed): %v", total, suppressed, err)
		}
		return
	}
	tree := render.Render(snap)

	l.commitMu.Lock()
	defer l.commitMu.Unlock()
	l.surface.Commit(tree)
	l.commits.Add(1)
	l.degraded = false
	l.hasLast = true
	l.lastHash = sum
}

// degrade shows the connection-closed indicator once per outage.
func (l *Loop) degrade() {
	l.degradedTicks.Add(1)
	l.commitMu.Lock()
	defer l.commitMu.Unlock()
	if l.degraded {
		return
	}
	l.surface.Commit(render.Degraded())
	l.commits.Add(1)
	l.degraded = true
	l.hasLast = false
}

// Stats returns a copy of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:          l.ticks.Load(),
		Polls:          l.polls.Load(),
		Replies:        l.replies.Load(),
		Commits:        l.commits.Load(),
		DecodeFailures: l.decodeFailures.Total(),
		DegradedTicks:  l.degradedTicks.Load(),
		Duplicates:     l.duplicates.Load(),
		Dials:          l.dials.Load(),
		DialFailures:   l.dialFailures.Total(),
	}
}

// Dialer adapts transport.Dial to a DialFunc.
func Dialer(endpoint string, opts transport.Options) DialFunc {
	return func(ctx context.Context) (Connection, error) {
		conn, err := transport.Dial(ctx, endpoint, opts)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
