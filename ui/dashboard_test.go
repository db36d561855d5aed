package ui

import (
	"strings"
	"testing"

	"aethermon/render"

	"github.com/gdamore/tcell/v2"
)

func runeKey(r rune) *tcell.EventKey { return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone) }

func sampleTree() render.Tree {
	return render.Tree{Sections: []render.Section{
		{Kind: render.SectionSystem, Title: "driver", Rows: []render.Row{
			{Group: render.GroupSystem, Kind: render.RowStat, Label: "bytesSent", Value: "1200", Numeric: true},
		}},
		{Kind: render.SectionStream, Title: "aeron:ipc / 37", IPC: true},
	}}
}

func TestDashboardCommitDrawsOnFlush(t *testing.T) {
	d := newDashboard(DashboardOptions{Endpoint: "ws://localhost:8080/aether"}, nil)
	defer d.Stop()

	d.Commit(sampleTree())
	if got := d.streamsView.GetText(true); !strings.Contains(got, "waiting") {
		t.Fatalf("commit must not draw before the next frame, got %q", got)
	}
	d.scheduler.flush()
	got := d.streamsView.GetText(true)
	if !strings.Contains(got, "driver") || !strings.Contains(got, "1,200") {
		t.Fatalf("expected rendered tree in streams pane, got %q", got)
	}
	if header := d.header.GetText(true); !strings.Contains(header, "connected") || !strings.Contains(header, "ws://localhost:8080/aether") {
		t.Fatalf("unexpected header %q", header)
	}
	if d.Metrics().Commits() != 1 || d.Metrics().Draws() != 1 {
		t.Fatalf("unexpected metrics commits=%d draws=%d", d.Metrics().Commits(), d.Metrics().Draws())
	}
}

func TestDashboardLastCommitWins(t *testing.T) {
	d := newDashboard(DashboardOptions{}, nil)
	defer d.Stop()

	d.Commit(sampleTree())
	d.Commit(render.Degraded())
	d.scheduler.flush()
	got := d.streamsView.GetText(true)
	if !strings.Contains(got, render.DegradedTitle) || strings.Contains(got, "driver") {
		t.Fatalf("expected only the degraded indicator, got %q", got)
	}
	if d.Metrics().DegradedCommits() != 1 {
		t.Fatalf("expected one degraded commit")
	}
	if header := d.header.GetText(true); !strings.Contains(header, "socket closed") {
		t.Fatalf("expected degraded header, got %q", header)
	}
}

func TestDashboardSystemWriterFeedsLogPane(t *testing.T) {
	d := newDashboard(DashboardOptions{SystemLines: 2}, nil)
	defer d.Stop()

	w := d.SystemWriter()
	_, _ = w.Write([]byte("Poller: connected\nPoller: poll failed\nPoller: connected\n"))
	if got := d.system.Text(); got != "Poller: poll failed\nPoller: connected\n... +1 earlier" {
		t.Fatalf("unexpected system pane %q", got)
	}
}

func TestDashboardKeys(t *testing.T) {
	quits := 0
	d := newDashboard(DashboardOptions{UseAlternatives: true, OnQuit: func() { quits++ }}, nil)
	defer d.Stop()

	if d.handleKey(runeKey('?')) != nil || !d.helpShown {
		t.Fatalf("expected ? to open help")
	}
	if d.handleKey(runeKey('q')) != nil || quits != 0 {
		t.Fatalf("help overlay must swallow other keys")
	}
	if d.handleKey(tcell.NewEventKey(tcell.KeyEsc, 0, tcell.ModNone)) != nil || d.helpShown {
		t.Fatalf("expected Esc to close help")
	}

	if d.handleKey(runeKey('l')) != nil || d.focus.index != 1 {
		t.Fatalf("expected l to focus the system log")
	}
	if d.handleKey(tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone)) != nil || d.focus.index != 0 {
		t.Fatalf("expected Tab to cycle focus back to streams")
	}

	if d.handleKey(runeKey('/')) != nil || !d.filterShown {
		t.Fatalf("expected / to open the filter")
	}
	if ev := d.handleKey(runeKey('q')); ev == nil || quits != 0 {
		t.Fatalf("typing in the filter must not quit")
	}
	d.hideFilter()

	if d.handleKey(runeKey('q')) != nil || quits != 1 {
		t.Fatalf("expected q to quit")
	}
	if d.handleKey(tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)) != nil || quits != 2 {
		t.Fatalf("expected Ctrl+C to quit")
	}
	if ev := d.handleKey(runeKey('x')); ev == nil {
		t.Fatalf("unbound keys must pass through")
	}
}

func TestDashboardAlternativesDisabled(t *testing.T) {
	d := newDashboard(DashboardOptions{}, nil)
	defer d.Stop()
	if ev := d.handleKey(runeKey('l')); ev == nil || d.focus.index != 0 {
		t.Fatalf("l must pass through when alternatives are off")
	}
}

func TestDashboardStopIsIdempotent(t *testing.T) {
	d := newDashboard(DashboardOptions{}, nil)
	d.WaitReady()
	d.Stop()
	d.Stop()
	var nilDash *Dashboard
	nilDash.Stop()
	nilDash.Commit(render.Degraded())
}
