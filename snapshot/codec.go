package snapshot

import (
	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
)

// ErrMalformedSnapshot marks payloads that do not match the snapshot shape.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

var wireAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Decode parses one wire payload. Object key order is kept so channels,
// streams, rates and registrations render in the order the server sent them.
// Unknown fields are skipped and bytes after the top-level object are not
// inspected. Any shape or type mismatch, truncation or negative counter
// yields an error matching ErrMalformedSnapshot.
func Decode(data []byte) (*Snapshot, error) {
	it := jsoniter.ParseBytes(wireAPI, data)
	d := &decoder{it: it}
	s := &Snapshot{}

	if it.WhatIsNext() != jsoniter.ObjectValue {
		return nil, errors.Wrap(ErrMalformedSnapshot, "payload is not a JSON object")
	}
	d.object("snapshot", func(key string) bool {
		switch key {
		case "systemCounters":
			return d.object(key, func(label string) bool {
				var c SystemCounterSet
				if !d.systemCounters(label, &c) {
					return false
				}
				s.SystemCounters.Set(label, c)
				return true
			})
		case "streams":
			return d.object(key, func(channel string) bool {
				var streams StreamSet
				ok := d.object(channel, func(streamID string) bool {
					var pubs []PublisherView
					ok := d.array(channel+" / "+streamID, func() bool {
						var p PublisherView
						if !d.publisher(&p) {
							return false
						}
						pubs = append(pubs, p)
						return true
					})
					if ok {
						streams.Set(streamID, pubs)
					}
					return ok
				})
				if ok {
					s.Streams.Set(channel, streams)
				}
				return ok
			})
		default:
			return d.skip(key)
		}
	})
	if d.err != nil {
		return nil, d.err
	}
	if it.Error != nil {
		return nil, errors.Wrapf(ErrMalformedSnapshot, "%v", it.Error)
	}
	return s, nil
}

type decoder struct {
	it  *jsoniter.Iterator
	err error
}

func (d *decoder) fail(format string, args ...interface{}) bool {
	if d.err == nil {
		d.err = errors.Wrapf(ErrMalformedSnapshot, format, args...)
	}
	return false
}

func (d *decoder) iterFailed(field string) bool {
	if d.it.Error != nil {
		return d.fail("%s: %v", field, d.it.Error)
	}
	return false
}

func (d *decoder) object(field string, fn func(key string) bool) bool {
	switch d.it.WhatIsNext() {
	case jsoniter.NilValue:
		d.it.Skip()
		return true
	case jsoniter.ObjectValue:
	default:
		return d.fail("%s: expected object", field)
	}
	ok := d.it.ReadObjectCB(func(_ *jsoniter.Iterator, key string) bool {
		return fn(key)
	})
	if d.err != nil {
		return false
	}
	if !ok || d.it.Error != nil {
		return d.iterFailed(field) || d.fail("%s: unreadable object", field)
	}
	return true
}

func (d *decoder) array(field string, fn func() bool) bool {
	switch d.it.WhatIsNext() {
	case jsoniter.NilValue:
		d.it.Skip()
		return true
	case jsoniter.ArrayValue:
	default:
		return d.fail("%s: expected array", field)
	}
	ok := d.it.ReadArrayCB(func(*jsoniter.Iterator) bool {
		return fn()
	})
	if d.err != nil {
		return false
	}
	if !ok || d.it.Error != nil {
		return d.iterFailed(field) || d.fail("%s: unreadable array", field)
	}
	return true
}

func (d *decoder) skip(field string) bool {
	d.it.Skip()
	if d.it.Error != nil {
		return d.iterFailed(field)
	}
	return true
}

func (d *decoder) str(field string, dst *string) bool {
	switch d.it.WhatIsNext() {
	case jsoniter.NilValue:
		d.it.Skip()
		*dst = ""
		return true
	case jsoniter.StringValue:
		*dst = d.it.ReadString()
		if d.it.Error != nil {
			return d.iterFailed(field)
		}
		return true
	default:
		return d.fail("%s: expected string", field)
	}
}

// signed reads an integer that may legitimately be negative.
func (d *decoder) signed(field string, dst *int64) bool {
	if d.it.WhatIsNext() != jsoniter.NumberValue {
		return d.fail("%s: expected number", field)
	}
	v := d.it.ReadInt64()
	if d.it.Error != nil {
		return d.iterFailed(field)
	}
	*dst = v
	return true
}

// counter reads a non-negative integer.
func (d *decoder) counter(field string, dst *int64) bool {
	var v int64
	if !d.signed(field, &v) {
		return false
	}
	if v < 0 {
		return d.fail("%s: negative value %d", field, v)
	}
	*dst = v
	return true
}

func (d *decoder) int32(field string, dst *int32) bool {
	if d.it.WhatIsNext() != jsoniter.NumberValue {
		return d.fail("%s: expected number", field)
	}
	v := d.it.ReadInt32()
	if d.it.Error != nil {
		return d.iterFailed(field)
	}
	*dst = v
	return true
}

func (d *decoder) float(field string, dst *float64) bool {
	if d.it.WhatIsNext() != jsoniter.NumberValue {
		return d.fail("%s: expected number", field)
	}
	v := d.it.ReadFloat64()
	if d.it.Error != nil {
		return d.iterFailed(field)
	}
	*dst = v
	return true
}

func (d *decoder) systemCounters(label string, c *SystemCounterSet) bool {
	return d.object(label, func(key string) bool {
		switch key {
		case "bytesSent":
			return d.counter(key, &c.BytesSent)
		case "bytesReceived":
			return d.counter(key, &c.BytesReceived)
		case "naksSent":
			return d.counter(key, &c.NaksSent)
		case "naksReceived":
			return d.counter(key, &c.NaksReceived)
		case "errors":
			return d.counter(key, &c.Errors)
		case "clientTimeouts":
			return d.counter(key, &c.ClientTimeouts)
		default:
			return d.skip(key)
		}
	})
}

func (d *decoder) publisher(p *PublisherView) bool {
	return d.object("publisher", func(key string) bool {
		switch key {
		case "label":
			return d.str(key, &p.Label)
		case "channel":
			return d.str(key, &p.Channel)
		case "streamId":
			return d.int32(key, &p.StreamID)
		case "sessionId":
			return d.int32(key, &p.SessionID)
		case "publisherPosition":
			return d.counter(key, &p.PublisherPosition)
		case "publisherLimit":
			return d.counter(key, &p.PublisherLimit)
		case "senderPosition":
			return d.counter(key, &p.SenderPosition)
		case "senderLimit":
			return d.counter(key, &p.SenderLimit)
		case "sendBacklog":
			return d.counter(key, &p.SendBacklog)
		case "remainingBuffer":
			return d.signed(key, &p.RemainingBuffer)
		case "backPressureEvents":
			return d.counter(key, &p.BackPressureEvents)
		case "publishRates":
			return d.object(key, func(rate string) bool {
				var v float64
				if !d.float("publishRates."+rate, &v) {
					return false
				}
				p.PublishRates.Set(rate, v)
				return true
			})
		case "subscribers":
			return d.array(key, func() bool {
				var sub SubscriberView
				if !d.subscriber(&sub) {
					return false
				}
				p.Subscribers = append(p.Subscribers, sub)
				return true
			})
		default:
			return d.skip(key)
		}
	})
}

func (d *decoder) subscriber(s *SubscriberView) bool {
	return d.object("subscriber", func(key string) bool {
		switch key {
		case "label":
			return d.str(key, &s.Label)
		case "channel":
			return d.str(key, &s.Channel)
		case "streamId":
			return d.int32(key, &s.StreamID)
		case "sessionId":
			return d.int32(key, &s.SessionID)
		case "receiverPosition":
			return d.counter(key, &s.ReceiverPosition)
		case "receiverHighWaterMark":
			return d.counter(key, &s.ReceiverHighWaterMark)
		case "subscriberPositions":
			return d.object(key, func(registration string) bool {
				var v int64
				if !d.counter("subscriberPositions."+registration, &v) {
					return false
				}
				s.SubscriberPositions.Set(registration, v)
				return true
			})
		default:
			return d.skip(key)
		}
	})
}

// Encode writes s in the wire format Decode accepts, keeping key order.
func Encode(s *Snapshot) ([]byte, error) {
	stream := wireAPI.BorrowStream(nil)
	defer wireAPI.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField("systemCounters")
	stream.WriteObjectStart()
	first := true
	if s != nil {
		for label, c := range s.SystemCounters.All() {
			if !first {
				stream.WriteMore()
			}
			first = false
			stream.WriteObjectField(label)
			writeSystemCounters(stream, c)
		}
	}
	stream.WriteObjectEnd()
	stream.WriteMore()
	stream.WriteObjectField("streams")
	stream.WriteObjectStart()
	first = true
	if s != nil {
		for channel, streams := range s.Streams.All() {
			if !first {
				stream.WriteMore()
			}
			first = false
			stream.WriteObjectField(channel)
			stream.WriteObjectStart()
			innerFirst := true
			for streamID, pubs := range streams.All() {
				if !innerFirst {
					stream.WriteMore()
				}
				innerFirst = false
				stream.WriteObjectField(streamID)
				stream.WriteArrayStart()
				for i := range pubs {
					if i > 0 {
						stream.WriteMore()
					}
					writePublisher(stream, &pubs[i])
				}
				stream.WriteArrayEnd()
			}
			stream.WriteObjectEnd()
		}
	}
	stream.WriteObjectEnd()
	stream.WriteObjectEnd()

	if stream.Error != nil {
		return nil, errors.Wrap(stream.Error, "encode snapshot")
	}
	out := make([]byte, len(stream.Buffer()))
	copy(out, stream.Buffer())
	return out, nil
}

func writeInt64Field(stream *jsoniter.Stream, name string, v int64, more bool) {
	stream.WriteObjectField(name)
	stream.WriteInt64(v)
	if more {
		stream.WriteMore()
	}
}

func writeSystemCounters(stream *jsoniter.Stream, c SystemCounterSet) {
	stream.WriteObjectStart()
	writeInt64Field(stream, "bytesSent", c.BytesSent, true)
	writeInt64Field(stream, "bytesReceived", c.BytesReceived, true)
	writeInt64Field(stream, "naksSent", c.NaksSent, true)
	writeInt64Field(stream, "naksReceived", c.NaksReceived, true)
	writeInt64Field(stream, "errors", c.Errors, true)
	writeInt64Field(stream, "clientTimeouts", c.ClientTimeouts, false)
	stream.WriteObjectEnd()
}

func writePublisher(stream *jsoniter.Stream, p *PublisherView) {
	stream.WriteObjectStart()
	stream.WriteObjectField("label")
	stream.WriteString(p.Label)
	stream.WriteMore()
	stream.WriteObjectField("channel")
	stream.WriteString(p.Channel)
	stream.WriteMore()
	stream.WriteObjectField("streamId")
	stream.WriteInt32(p.StreamID)
	stream.WriteMore()
	stream.WriteObjectField("sessionId")
	stream.WriteInt32(p.SessionID)
	stream.WriteMore()
	writeInt64Field(stream, "publisherPosition", p.PublisherPosition, true)
	writeInt64Field(stream, "publisherLimit", p.PublisherLimit, true)
	writeInt64Field(stream, "senderPosition", p.SenderPosition, true)
	writeInt64Field(stream, "senderLimit", p.SenderLimit, true)
	writeInt64Field(stream, "backPressureEvents", p.BackPressureEvents, true)
	writeInt64Field(stream, "sendBacklog", p.SendBacklog, true)
	writeInt64Field(stream, "remainingBuffer", p.RemainingBuffer, true)
	stream.WriteObjectField("subscribers")
	stream.WriteArrayStart()
	for i := range p.Subscribers {
		if i > 0 {
			stream.WriteMore()
		}
		writeSubscriber(stream, &p.Subscribers[i])
	}
	stream.WriteArrayEnd()
	stream.WriteMore()
	stream.WriteObjectField("publishRates")
	stream.WriteObjectStart()
	first := true
	for name, v := range p.PublishRates.All() {
		if !first {
			stream.WriteMore()
		}
		first = false
		stream.WriteObjectField(name)
		stream.WriteFloat64(v)
	}
	stream.WriteObjectEnd()
	stream.WriteObjectEnd()
}

func writeSubscriber(stream *jsoniter.Stream, s *SubscriberView) {
	stream.WriteObjectStart()
	stream.WriteObjectField("label")
	stream.WriteString(s.Label)
	stream.WriteMore()
	stream.WriteObjectField("channel")
	stream.WriteString(s.Channel)
	stream.WriteMore()
	stream.WriteObjectField("streamId")
	stream.WriteInt32(s.StreamID)
	stream.WriteMore()
	stream.WriteObjectField("sessionId")
	stream.WriteInt32(s.SessionID)
	stream.WriteMore()
	stream.WriteObjectField("subscriberPositions")
	stream.WriteObjectStart()
	first := true
	for reg, pos := range s.SubscriberPositions.All() {
		if !first {
			stream.WriteMore()
		}
		first = false
		stream.WriteObjectField(reg)
		stream.WriteInt64(pos)
	}
	stream.WriteObjectEnd()
	stream.WriteMore()
	writeInt64Field(stream, "receiverPosition", s.ReceiverPosition, true)
	writeInt64Field(stream, "receiverHighWaterMark", s.ReceiverHighWaterMark, false)
	stream.WriteObjectEnd()
}
