// Package snapshot defines the shape of one transport telemetry snapshot and
// its JSON wire codec. A Snapshot is built once (by Decode or by the builder
// helpers) and is treated as immutable afterwards.
package snapshot

// SystemCounterSet holds the driver-wide counters reported for one node.
// All values are monotonic for the lifetime of the node.
type SystemCounterSet struct {
	BytesSent      int64
	BytesReceived  int64
	NaksSent       int64
	NaksReceived   int64
	Errors         int64
	ClientTimeouts int64
}

// PublisherView is the state of one publication session on a stream.
// SenderPosition and SenderLimit are only meaningful on network channels.
type PublisherView struct {
	Label              string
	Channel            string
	StreamID           int32
	SessionID          int32
	PublisherPosition  int64
	PublisherLimit     int64
	SenderPosition     int64
	SenderLimit        int64
	SendBacklog        int64
	RemainingBuffer    int64
	BackPressureEvents int64
	PublishRates       Ordered[float64]
	Subscribers        []SubscriberView
}

// SubscriberView is the state of one subscribing image of a publication.
// SubscriberPositions is keyed by subscription registration id.
type SubscriberView struct {
	Label                 string
	Channel               string
	StreamID              int32
	SessionID             int32
	ReceiverPosition      int64
	ReceiverHighWaterMark int64
	SubscriberPositions   Ordered[int64]
}

// StreamSet maps stream id to the publishers seen on that stream.
type StreamSet = Ordered[[]PublisherView]

// Snapshot is one complete telemetry report.
type Snapshot struct {
	SystemCounters Ordered[SystemCounterSet]
	Streams        Ordered[StreamSet]
}

// AddPublisher appends p under channel/streamID, creating either level on
// first use. Intended for builders; never call it on a published snapshot.
func (s *Snapshot) AddPublisher(channel, streamID string, p PublisherView) {
	streams, _ := s.Streams.Get(channel)
	pubs, _ := streams.Get(streamID)
	streams.Set(streamID, append(pubs, p))
	s.Streams.Set(channel, streams)
}

// PublisherCount returns the number of publishers across all streams.
func (s *Snapshot) PublisherCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, streams := range s.Streams.All() {
		for _, pubs := range streams.All() {
			n += len(pubs)
		}
	}
	return n
}
