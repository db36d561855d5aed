package stubserver

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"aethermon/derive"
	"aethermon/snapshot"
)

const (
	StreamID = 37

	ChannelA = "aeron:udp?endpoint=localhost:54567"
	ChannelB = "aeron:udp?endpoint=localhost:54577"
	ChannelC = "aeron:udp?endpoint=localhost:54587"

	clientLabel = "client"
	serverLabel = "server"

	// frameLength is one aligned data frame carrying the stub payload.
	frameLength = 64
	termWindow  = 64 * 1024
	pollLimit   = 16
	// burstOffers is the extra load put on channel A on busy steps.
	burstOffers = 100
	rateHistory = 101
)

// Simulator produces moving snapshots shaped like a small deployment: a
// client node publishing on three UDP channels plus IPC, and a server node
// subscribing to them. The same seed always yields the same sequence.
type Simulator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	tick time.Duration
	pubs []*simPublisher
	step uint64
}

type simPublisher struct {
	channel        string
	sessionID      int32
	position       int64
	senderPosition int64
	backPressure   int64
	naks           int64
	history        []int64
	sub            simSubscriber
}

type simSubscriber struct {
	label            string
	receiverPosition int64
	highWaterMark    int64
	registrations    []string
	positions        []int64
}

// NewSimulator seeds the model. tick is the nominal time between steps and
// only scales the reported publish rates.
func NewSimulator(seed int64, tick time.Duration) *Simulator {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	s := &Simulator{
		rng:  rand.New(rand.NewSource(seed)),
		tick: tick,
	}
	nextRegistration := int64(1000 + s.rng.Intn(1000))
	add := func(channel string, subscriptions int) *simPublisher {
		p := &simPublisher{channel: channel, sessionID: s.rng.Int31()}
		p.sub.label = serverLabel
		if derive.IsIPC(channel) {
			p.sub.label = clientLabel
		}
		for i := 0; i < subscriptions; i++ {
			p.sub.registrations = append(p.sub.registrations, strconv.FormatInt(nextRegistration, 10))
			p.sub.positions = append(p.sub.positions, 0)
			nextRegistration++
		}
		s.pubs = append(s.pubs, p)
		return p
	}
	add(ChannelA, 3)
	add(ChannelB, 2)
	add(ChannelC, 2)
	add(derive.IPCMarker, 1)
	return s
}

// Step advances the model by one tick.
func (s *Simulator) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step++
	a, b, c, ipc := s.pubs[0], s.pubs[1], s.pubs[2], s.pubs[3]

	rnd := s.rng.Intn(10)
	s.offer(a)
	if rnd >= 1 {
		s.offer(b)
	}
	if rnd >= 2 {
		s.offer(c)
		s.offer(ipc)
	}
	for _, p := range s.pubs {
		s.send(p)
	}
	if rnd >= 3 {
		s.poll(a, 0)
	}
	if rnd >= 4 {
		s.poll(a, 1)
	}
	if rnd >= 5 {
		s.poll(a, 2)
	}
	if rnd >= 6 {
		s.poll(b, 0)
		for i := 0; i < burstOffers; i++ {
			s.offer(a)
		}
	}
	if rnd >= 7 {
		s.poll(b, 1)
		s.poll(ipc, 0)
	}
	if rnd >= 8 {
		s.poll(c, 0)
	}
	if rnd >= 9 {
		s.poll(c, 1)
	}
	for _, p := range s.pubs {
		p.history = append(p.history, p.position)
		if len(p.history) > rateHistory {
			p.history = p.history[len(p.history)-rateHistory:]
		}
	}
}

// limit is where the publisher must stop: one term window past the slowest
// subscriber.
func (p *simPublisher) limit() int64 {
	slowest := p.position
	for _, pos := range p.sub.positions {
		if pos < slowest {
			slowest = pos
		}
	}
	return slowest + termWindow
}

func (s *Simulator) offer(p *simPublisher) {
	if p.position+frameLength > p.limit() {
		p.backPressure++
		return
	}
	p.position += frameLength
}

// send moves data from the publication towards the receiver on UDP channels.
func (s *Simulator) send(p *simPublisher) {
	if derive.IsIPC(p.channel) {
		p.sub.highWaterMark = p.position
		p.sub.receiverPosition = p.position
		return
	}
	if backlog := p.position - p.senderPosition; backlog > 0 {
		chunk := int64(1+s.rng.Intn(pollLimit)) * frameLength * 4
		if chunk > backlog {
			chunk = backlog
		}
		p.senderPosition += chunk
	}
	p.sub.highWaterMark = p.senderPosition
	if gap := p.sub.highWaterMark - p.sub.receiverPosition; gap > 0 {
		if s.rng.Intn(20) == 0 {
			p.naks++
			return
		}
		p.sub.receiverPosition = p.sub.highWaterMark
	}
}

func (s *Simulator) poll(p *simPublisher, idx int) {
	available := p.sub.receiverPosition - p.sub.positions[idx]
	if available <= 0 {
		return
	}
	n := int64(s.rng.Intn(pollLimit)) * frameLength
	if n > available {
		n = available
	}
	p.sub.positions[idx] += n
}

// Run steps the model every tick until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// Steps returns how many times Step has run.
func (s *Simulator) Steps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Snapshot builds a fresh snapshot of the current state. Channels and stream
// ids are sorted, publishers are sorted by label then session.
func (s *Simulator) Snapshot() *snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var client, server snapshot.SystemCounterSet
	views := make([]snapshot.PublisherView, 0, len(s.pubs))
	for _, p := range s.pubs {
		ipc := derive.IsIPC(p.channel)
		view := snapshot.PublisherView{
			Label:              clientLabel,
			Channel:            p.channel,
			StreamID:           StreamID,
			SessionID:          p.sessionID,
			PublisherPosition:  p.position,
			PublisherLimit:     p.limit(),
			BackPressureEvents: p.backPressure,
		}
		view.RemainingBuffer = view.PublisherLimit - view.PublisherPosition
		if !ipc {
			view.SenderPosition = p.senderPosition
			view.SenderLimit = p.senderPosition + termWindow
			view.SendBacklog = max(0, p.position-p.senderPosition)
			client.BytesSent += p.senderPosition
			client.NaksReceived += p.naks
			server.BytesReceived += p.sub.receiverPosition
			server.NaksSent += p.naks
		}
		view.PublishRates.Set("1s", s.rateLocked(p, time.Second))
		view.PublishRates.Set("10s", s.rateLocked(p, 10*time.Second))

		sub := snapshot.SubscriberView{
			Label:                 p.sub.label,
			Channel:               p.channel,
			StreamID:              StreamID,
			SessionID:             p.sessionID,
			ReceiverPosition:      p.sub.receiverPosition,
			ReceiverHighWaterMark: p.sub.highWaterMark,
		}
		for i, reg := range p.sub.registrations {
			sub.SubscriberPositions.Set(reg, p.sub.positions[i])
		}
		view.Subscribers = []snapshot.SubscriberView{sub}
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Channel != views[j].Channel {
			return views[i].Channel < views[j].Channel
		}
		if views[i].Label != views[j].Label {
			return views[i].Label < views[j].Label
		}
		return views[i].SessionID < views[j].SessionID
	})

	snap := &snapshot.Snapshot{}
	snap.SystemCounters.Set(clientLabel, client)
	snap.SystemCounters.Set(serverLabel, server)
	stream := strconv.Itoa(StreamID)
	for _, v := range views {
		snap.AddPublisher(v.Channel, stream, v)
	}
	return snap
}

// rateLocked is bytes per second over the trailing window, or over the
// available history when it is shorter.
func (s *Simulator) rateLocked(p *simPublisher, window time.Duration) float64 {
	steps := int(window / s.tick)
	if steps < 1 {
		steps = 1
	}
	if n := len(p.history) - 1; steps > n {
		steps = n
	}
	if steps <= 0 {
		return 0
	}
	delta := p.history[len(p.history)-1] - p.history[len(p.history)-1-steps]
	return float64(delta) / (float64(steps) * s.tick.Seconds())
}
