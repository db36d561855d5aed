package ui

import (
	"context"
	"testing"
	"time"

	"aethermon/render"
)

func filterFixture() render.Tree {
	return render.Tree{Sections: []render.Section{
		{Kind: render.SectionSystem, Title: "driver"},
		{Kind: render.SectionStream, Title: "aeron:udp?endpoint=localhost:54567 / 37"},
		{Kind: render.SectionStream, Title: "aeron:ipc / 37"},
	}}
}

func TestFilterTreeKeepsSystemAndMatchingStreams(t *testing.T) {
	got := filterTree(filterFixture(), "ipc")
	if len(got.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %+v", got.Sections)
	}
	if got.Sections[0].Title != "driver" || got.Sections[1].Title != "aeron:ipc / 37" {
		t.Fatalf("unexpected filtered sections: %+v", got.Sections)
	}
	if all := filterTree(filterFixture(), ""); len(all.Sections) != 3 {
		t.Fatalf("empty query must keep everything")
	}
	if deg := filterTree(render.Degraded(), "ipc"); !deg.Degraded() {
		t.Fatalf("degraded tree must pass through unchanged")
	}
}

func TestSectionFilterDebounces(t *testing.T) {
	f := NewSectionFilter(context.Background())
	f.debounce = 5 * time.Millisecond
	fired := make(chan struct{}, 4)

	f.SetQuery("UDP", func() { fired <- struct{}{} })
	if f.ActiveQuery() != "" {
		t.Fatalf("query must not apply before the debounce")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("debounced callback did not fire")
	}
	if f.ActiveQuery() != "udp" {
		t.Fatalf("expected normalized query, got %q", f.ActiveQuery())
	}
	if got := f.Apply(filterFixture()); len(got.Sections) != 2 {
		t.Fatalf("expected driver plus udp section, got %+v", got.Sections)
	}
	f.Clear()
	if f.ActiveQuery() != "" {
		t.Fatalf("clear must drop the active query")
	}
}

func TestSectionFilterIgnoresCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewSectionFilter(ctx)
	f.SetQuery("ipc", func() { t.Errorf("callback must not run after cancel") })
	time.Sleep(2 * filterDebounce / 10)
	if f.ActiveQuery() != "" {
		t.Fatalf("canceled filter must not activate queries")
	}
}
