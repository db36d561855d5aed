package render

import (
	"reflect"
	"strconv"
	"testing"

	"aethermon/snapshot"
)

func findRow(t *testing.T, rows []Row, label string) Row {
	t.Helper()
	for _, row := range rows {
		if row.Label == label {
			return row
		}
	}
	t.Fatalf("row %q not found in %+v", label, rows)
	return Row{}
}

func hasRow(rows []Row, label string) bool {
	for _, row := range rows {
		if row.Label == label {
			return true
		}
	}
	return false
}

func labels(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Kind == RowSpacer {
			out = append(out, "")
			continue
		}
		out = append(out, row.Label)
	}
	return out
}

func streamSnapshot(channel string) *snapshot.Snapshot {
	sub := snapshot.SubscriberView{Label: "server", ReceiverPosition: 1000, ReceiverHighWaterMark: 1100}
	sub.SubscriberPositions.Set("sub1", 400)
	pub := snapshot.PublisherView{
		Label:             "client",
		SessionID:         7,
		PublisherPosition: 1000,
		PublisherLimit:    4000,
		SenderPosition:    995,
		SenderLimit:       2000,
		SendBacklog:       5,
		RemainingBuffer:   3000,
		Subscribers:       []snapshot.SubscriberView{sub},
	}
	s := &snapshot.Snapshot{}
	s.AddPublisher(channel, "1", pub)
	return s
}

func TestRenderSystemCounters(t *testing.T) {
	s := &snapshot.Snapshot{}
	s.SystemCounters.Set("driver", snapshot.SystemCounterSet{BytesSent: 100, BytesReceived: 50})

	tree := Render(s)
	if len(tree.Sections) != 1 {
		t.Fatalf("expected one section, got %d", len(tree.Sections))
	}
	sec := tree.Sections[0]
	if sec.Kind != SectionSystem || sec.Title != "driver" {
		t.Fatalf("unexpected section: %+v", sec)
	}
	want := []Row{
		{Group: GroupSystem, Label: "Bytes sent", Value: "100", Numeric: true},
		{Group: GroupSystem, Label: "Bytes received", Value: "50", Numeric: true},
		{Group: GroupSystem, Label: "NAKs sent", Value: "0", Numeric: true},
		{Group: GroupSystem, Label: "NAKs received", Value: "0", Numeric: true},
		{Group: GroupSystem, Label: "Errors", Value: "0", Numeric: true},
		{Group: GroupSystem, Label: "Client timeouts", Value: "0", Numeric: true},
	}
	if !reflect.DeepEqual(sec.Rows, want) {
		t.Fatalf("unexpected rows:\n got %+v\nwant %+v", sec.Rows, want)
	}
	if tree.Highlighted() != 0 {
		t.Fatalf("expected no highlights")
	}
}

func TestRenderNetworkStream(t *testing.T) {
	tree := Render(streamSnapshot("aeron:udp?endpoint=localhost:9999"))
	if len(tree.Sections) != 1 {
		t.Fatalf("expected one section, got %d", len(tree.Sections))
	}
	sec := tree.Sections[0]
	if sec.Title != "aeron:udp?endpoint=localhost:9999 / 1" || sec.IPC {
		t.Fatalf("unexpected section header: %+v", sec)
	}
	wantLabels := []string{
		"Context", "Session", "Publisher Position", "Publisher Limit",
		"Sender Position", "Sender Limit", "Queued", "Remaining Buffer",
		"Back Pressure",
		"", "Context", "Receiver Position", "Receiver HWM",
		"Subscriber Position", "Bytes Available",
	}
	if got := labels(sec.Rows); !reflect.DeepEqual(got, wantLabels) {
		t.Fatalf("unexpected row labels:\n got %v\nwant %v", got, wantLabels)
	}
	if queued := findRow(t, sec.Rows, "Queued"); !queued.Highlighted || queued.Value != "5" {
		t.Fatalf("expected highlighted Queued=5, got %+v", queued)
	}
	if bp := findRow(t, sec.Rows, "Back Pressure"); bp.Highlighted || !bp.BottomBar {
		t.Fatalf("expected plain bottom-bar Back Pressure, got %+v", bp)
	}
	if hwm := findRow(t, sec.Rows, "Receiver HWM"); !hwm.BottomBar || hwm.Value != "1100" {
		t.Fatalf("unexpected Receiver HWM row: %+v", hwm)
	}
	avail := findRow(t, sec.Rows, "Bytes Available")
	if avail.Value != "600" || !avail.Highlighted || !avail.BottomBar {
		t.Fatalf("expected highlighted Bytes Available=600, got %+v", avail)
	}
	if ctx := sec.Rows[0]; ctx.Value != "client" || ctx.Numeric {
		t.Fatalf("unexpected context row: %+v", ctx)
	}
}

func TestRenderIPCStream(t *testing.T) {
	tree := Render(streamSnapshot("aeron:ipc"))
	sec := tree.Sections[0]
	if !sec.IPC {
		t.Fatalf("expected IPC section")
	}
	for _, label := range []string{"Sender Position", "Sender Limit", "Queued", "Remaining Buffer", "Receiver Position", "Receiver HWM"} {
		if hasRow(sec.Rows, label) {
			t.Fatalf("row %q must be absent on IPC channels", label)
		}
	}
	// Publisher position 1000 - subscriber position 400.
	avail := findRow(t, sec.Rows, "Bytes Available")
	if avail.Value != "600" || !avail.Highlighted {
		t.Fatalf("unexpected Bytes Available: %+v", avail)
	}

	s := streamSnapshot("aeron:ipc")
	streams, _ := s.Streams.Get("aeron:ipc")
	pubs, _ := streams.Get("1")
	pubs[0].PublisherPosition = 250
	pubs[0].Subscribers[0].ReceiverPosition = 999999
	avail = findRow(t, Render(s).Sections[0].Rows, "Bytes Available")
	if avail.Value != "0" {
		t.Fatalf("IPC availability must ignore receiver position, got %+v", avail)
	}
}

func TestRenderClampsAvailableBytes(t *testing.T) {
	sub := snapshot.SubscriberView{ReceiverPosition: 100}
	sub.SubscriberPositions.Set("sub1", 150)
	s := &snapshot.Snapshot{}
	s.AddPublisher("aeron:udp?endpoint=localhost:9999", "1", snapshot.PublisherView{Subscribers: []snapshot.SubscriberView{sub}})

	avail := findRow(t, Render(s).Sections[0].Rows, "Bytes Available")
	if avail.Value != "0" || avail.Highlighted {
		t.Fatalf("expected clamped, unhighlighted Bytes Available, got %+v", avail)
	}
}

func TestRenderBackPressureHighlight(t *testing.T) {
	s := &snapshot.Snapshot{}
	s.AddPublisher("aeron:ipc", "3", snapshot.PublisherView{BackPressureEvents: 2})
	bp := findRow(t, Render(s).Sections[0].Rows, "Back Pressure")
	if !bp.Highlighted || bp.Value != "2" {
		t.Fatalf("expected highlighted back pressure, got %+v", bp)
	}
}

func TestRenderRatesInOrder(t *testing.T) {
	p := snapshot.PublisherView{}
	p.PublishRates.Set("10s", 2.5)
	p.PublishRates.Set("1s", 100)
	s := &snapshot.Snapshot{}
	s.AddPublisher("aeron:ipc", "1", p)

	rows := Render(s).Sections[0].Rows
	got := labels(rows)
	want := []string{"Context", "Session", "Publisher Position", "Publisher Limit", "Rate 10s", "Rate 1s", "Back Pressure"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected labels: %v", got)
	}
	if rows[4].Value != "2.5" || rows[5].Value != "100" {
		t.Fatalf("unexpected rate values: %q %q", rows[4].Value, rows[5].Value)
	}
}

func TestRenderOrderingAndCompleteness(t *testing.T) {
	s := &snapshot.Snapshot{}
	s.SystemCounters.Set("server", snapshot.SystemCounterSet{})
	s.SystemCounters.Set("client", snapshot.SystemCounterSet{})
	channels := []string{"aeron:udp?endpoint=z:1", "aeron:ipc", "aeron:udp?endpoint=a:1"}
	for _, ch := range channels {
		for _, id := range []string{"9", "2"} {
			for k := 0; k < 3; k++ {
				sub := snapshot.SubscriberView{Label: "s" + strconv.Itoa(k)}
				sub.SubscriberPositions.Set("r2", 0)
				sub.SubscriberPositions.Set("r1", 0)
				s.AddPublisher(ch, id, snapshot.PublisherView{Label: "p" + strconv.Itoa(k), Subscribers: []snapshot.SubscriberView{sub}})
			}
		}
	}

	tree := Render(s)
	var titles []string
	for _, sec := range tree.Sections {
		titles = append(titles, sec.Title)
	}
	want := []string{"server", "client"}
	for _, ch := range channels {
		want = append(want, ch+" / 9", ch+" / 2")
	}
	if !reflect.DeepEqual(titles, want) {
		t.Fatalf("unexpected section order:\n got %v\nwant %v", titles, want)
	}

	for _, sec := range tree.Sections[2:] {
		var contexts []string
		subPositions := 0
		for _, row := range sec.Rows {
			if row.Label == "Context" {
				contexts = append(contexts, row.Value)
			}
			if row.Label == "Subscriber Position" {
				subPositions++
			}
		}
		wantCtx := []string{"p0", "s0", "p1", "s1", "p2", "s2"}
		if !reflect.DeepEqual(contexts, wantCtx) {
			t.Fatalf("section %q: unexpected block order %v", sec.Title, contexts)
		}
		if subPositions != 6 {
			t.Fatalf("section %q: expected 6 registrations, got %d", sec.Title, subPositions)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	s := streamSnapshot("aeron:udp?endpoint=localhost:9999")
	s.SystemCounters.Set("driver", snapshot.SystemCounterSet{Errors: 3})
	a := Render(s)
	b := Render(s)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("render is not deterministic")
	}
	a.Sections[0].Rows[0].Value = "mutated"
	if c := Render(s); c.Sections[0].Rows[0].Value == "mutated" {
		t.Fatalf("render reused a previous tree")
	}
}

func TestRenderEmptyInputs(t *testing.T) {
	if tree := Render(nil); len(tree.Sections) != 0 {
		t.Fatalf("expected empty tree for nil snapshot")
	}
	s := &snapshot.Snapshot{}
	var empty snapshot.StreamSet
	empty.Set("5", nil)
	s.Streams.Set("aeron:ipc", empty)
	tree := Render(s)
	if len(tree.Sections) != 1 || len(tree.Sections[0].Rows) != 0 {
		t.Fatalf("expected header-only section for empty stream, got %+v", tree)
	}
	if tree.Degraded() {
		t.Fatalf("empty stream section must not read as degraded")
	}
}

func TestDegradedTree(t *testing.T) {
	tree := Degraded()
	if !tree.Degraded() {
		t.Fatalf("expected degraded tree")
	}
	if len(tree.Rows()) != 0 {
		t.Fatalf("degraded tree must carry no rows")
	}
	if tree.Sections[0].Title != "Socket closed" {
		t.Fatalf("unexpected degraded title %q", tree.Sections[0].Title)
	}
}
