package render

import (
	"strconv"

	"aethermon/derive"
	"aethermon/snapshot"
)

const (
	LabelBytesSent      = "Bytes sent"
	LabelBytesReceived  = "Bytes received"
	LabelNaksSent       = "NAKs sent"
	LabelNaksReceived   = "NAKs received"
	LabelErrors         = "Errors"
	LabelClientTimeouts = "Client timeouts"

	LabelContext           = "Context"
	LabelSession           = "Session"
	LabelPublisherPosition = "Publisher Position"
	LabelPublisherLimit    = "Publisher Limit"
	LabelSenderPosition    = "Sender Position"
	LabelSenderLimit       = "Sender Limit"
	LabelQueued            = "Queued"
	LabelRemainingBuffer   = "Remaining Buffer"
	LabelRatePrefix        = "Rate "
	LabelBackPressure      = "Back Pressure"

	LabelReceiverPosition   = "Receiver Position"
	LabelReceiverHWM        = "Receiver HWM"
	LabelSubscriberPosition = "Subscriber Position"
	LabelBytesAvailable     = "Bytes Available"
)

// Render maps s to its render tree: one section per system-counter label,
// then one section per channel/stream pair, all in the snapshot's order.
// A nil snapshot renders as an empty tree.
func Render(s *snapshot.Snapshot) Tree {
	var t Tree
	if s == nil {
		return t
	}
	t.Sections = make([]Section, 0, s.SystemCounters.Len()+s.Streams.Len())
	for label, c := range s.SystemCounters.All() {
		t.Sections = append(t.Sections, systemSection(label, c))
	}
	for channel, streams := range s.Streams.All() {
		ipc := derive.IsIPC(channel)
		for streamID, pubs := range streams.All() {
			sec := Section{
				Kind:     SectionStream,
				Title:    channel + " / " + streamID,
				Channel:  channel,
				StreamID: streamID,
				IPC:      ipc,
			}
			for i := range pubs {
				sec.Rows = appendPublisher(sec.Rows, ipc, &pubs[i])
			}
			t.Sections = append(t.Sections, sec)
		}
	}
	return t
}

func systemSection(label string, c snapshot.SystemCounterSet) Section {
	return Section{
		Kind:  SectionSystem,
		Title: label,
		Rows: []Row{
			systemRow(LabelBytesSent, c.BytesSent),
			systemRow(LabelBytesReceived, c.BytesReceived),
			systemRow(LabelNaksSent, c.NaksSent),
			systemRow(LabelNaksReceived, c.NaksReceived),
			systemRow(LabelErrors, c.Errors),
			systemRow(LabelClientTimeouts, c.ClientTimeouts),
		},
	}
}

func systemRow(label string, v int64) Row {
	return Row{Group: GroupSystem, Label: label, Value: strconv.FormatInt(v, 10), Numeric: true}
}

func pubRow(label string, v int64) Row {
	return Row{Group: GroupPublisher, Label: label, Value: strconv.FormatInt(v, 10), Numeric: true}
}

func subRow(label string, v int64) Row {
	return Row{Group: GroupSubscriber, Label: label, Value: strconv.FormatInt(v, 10), Numeric: true}
}

func appendPublisher(rows []Row, ipc bool, p *snapshot.PublisherView) []Row {
	rows = append(rows,
		Row{Group: GroupPublisher, Label: LabelContext, Value: p.Label},
		pubRow(LabelSession, int64(p.SessionID)),
		pubRow(LabelPublisherPosition, p.PublisherPosition),
		pubRow(LabelPublisherLimit, p.PublisherLimit),
	)
	if !ipc {
		queued := pubRow(LabelQueued, p.SendBacklog)
		queued.Highlighted = derive.IsBacklogged(p)
		rows = append(rows,
			pubRow(LabelSenderPosition, p.SenderPosition),
			pubRow(LabelSenderLimit, p.SenderLimit),
			queued,
			pubRow(LabelRemainingBuffer, p.RemainingBuffer),
		)
	}
	for name, rate := range p.PublishRates.All() {
		rows = append(rows, Row{
			Group:   GroupPublisher,
			Label:   LabelRatePrefix + name,
			Value:   strconv.FormatFloat(rate, 'f', -1, 64),
			Numeric: true,
		})
	}
	bp := pubRow(LabelBackPressure, p.BackPressureEvents)
	bp.Highlighted = derive.IsBackPressured(p)
	bp.BottomBar = true
	rows = append(rows, bp)

	for i := range p.Subscribers {
		rows = appendSubscriber(rows, ipc, p.PublisherPosition, &p.Subscribers[i])
	}
	return rows
}

func appendSubscriber(rows []Row, ipc bool, publisherPosition int64, sub *snapshot.SubscriberView) []Row {
	rows = append(rows,
		Row{Group: GroupSubscriber, Kind: RowSpacer},
		Row{Group: GroupSubscriber, Label: LabelContext, Value: sub.Label},
	)
	if !ipc {
		hwm := subRow(LabelReceiverHWM, sub.ReceiverHighWaterMark)
		hwm.BottomBar = true
		rows = append(rows, subRow(LabelReceiverPosition, sub.ReceiverPosition), hwm)
	}
	for reg, pos := range sub.SubscriberPositions.All() {
		available := derive.AvailableBytes(ipc, publisherPosition, sub, reg)
		avail := subRow(LabelBytesAvailable, available)
		avail.Highlighted = derive.IsUnread(available)
		avail.BottomBar = true
		rows = append(rows, subRow(LabelSubscriberPosition, pos), avail)
	}
	return rows
}
