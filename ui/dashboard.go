package ui

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"aethermon/render"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	accentTag   = "[#ff69b4]"
	accentReset = "[-]"

	streamsTitle = "Streams"
	systemTitle  = "System"

	pageMain = "main"
	pageHelp = "help"

	systemPaneRows = 10
)

var (
	uiBorderColor = tcell.ColorGray
	uiTitleColor  = tcell.ColorHotPink
)

// DashboardOptions configures the interactive terminal surface.
type DashboardOptions struct {
	// Endpoint is shown in the header.
	Endpoint        string
	TargetFPS       int
	SystemLines     int
	UseAlternatives bool
	// OnQuit runs when the operator asks to quit. Nil stops the dashboard.
	OnQuit func()
}

// Dashboard is the tview surface: a header, the rendered streams pane, an
// optional section filter and the system log.
type Dashboard struct {
	app    *tview.Application
	pages  *tview.Pages
	body   *tview.Flex
	opts   DashboardOptions
	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}

	header      *tview.TextView
	streamsView *tview.TextView
	streams     *focusBox
	system      *logView
	filterInput *tview.InputField
	filter      *SectionFilter
	focus       focusGroup

	scheduler *frameScheduler
	metrics   *Metrics

	helpShown   bool
	filterShown bool

	mu       sync.Mutex
	last     render.Tree
	hasLast  bool
	stopOnce sync.Once
}

// NewDashboard builds the dashboard and starts the tview application.
func NewDashboard(opts DashboardOptions) *Dashboard {
	app := tview.NewApplication()
	d := newDashboard(opts, app)
	go func() {
		if err := app.Run(); err != nil {
			log.Printf("UI: tview error: %v", err)
		}
	}()
	return d
}

// newDashboard wires widgets without running the application. A nil app
// applies updates inline and is ready immediately.
func newDashboard(opts DashboardOptions, app *tview.Application) *Dashboard {
	if opts.SystemLines <= 0 {
		opts.SystemLines = 200
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		app:     app,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		metrics: NewMetrics(),
		filter:  NewSectionFilter(ctx),
	}
	if app != nil {
		var once sync.Once
		app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
			once.Do(func() { close(d.ready) })
			return false
		})
	} else {
		close(d.ready)
	}

	d.header = newBoxedTextView("aethermon")
	d.streamsView = newBoxedTextView(streamsTitle)
	d.streamsView.SetScrollable(true)
	d.streams = newFocusBox(d.streamsView, streamsTitle)
	d.system = newLogView(systemTitle, opts.SystemLines)
	d.filterInput = tview.NewInputField().
		SetLabel(accentText("Filter: ")).
		SetFieldWidth(0)
	d.filterInput.SetChangedFunc(func(text string) {
		d.filter.SetQuery(text, d.scheduleStreams)
	})
	d.filterInput.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEsc {
			d.clearFilter()
		}
		d.hideFilter()
	})

	d.setHeader("waiting for first snapshot")
	d.streamsView.SetText("waiting for first snapshot")

	d.body = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.filterInput, 0, 0, false).
		AddItem(d.streams.Primitive(), 0, 1, true).
		AddItem(d.system.Primitive(), systemPaneRows, 0, false)

	d.pages = tview.NewPages()
	d.pages.AddPage(pageMain, d.body, true, true)
	d.pages.AddPage(pageHelp, buildHelpOverlay(opts.UseAlternatives), true, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.header, 3, 0, false).
		AddItem(d.pages, 0, 1, true).
		AddItem(buildFooter(opts.UseAlternatives), 1, 0, false)

	d.focus = newFocusGroup(d.streams, d.system)
	d.scheduler = newFrameScheduler(app, opts.TargetFPS, 100*time.Millisecond, d.metrics.ObserveFrame)
	if app != nil {
		app.SetRoot(root, true)
		app.SetInputCapture(d.handleKey)
		d.scheduler.Start()
	}
	d.focus.set(app, 0)
	return d
}

func (d *Dashboard) WaitReady() {
	if d == nil || d.ready == nil {
		return
	}
	<-d.ready
}

func (d *Dashboard) Stop() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.cancel()
		d.filter.Stop()
		d.scheduler.Stop()
		if d.app != nil {
			d.app.Stop()
		}
	})
}

// Commit replaces the streams pane with t on the next frame.
func (d *Dashboard) Commit(t render.Tree) {
	if d == nil {
		return
	}
	d.metrics.ObserveCommit(t.Degraded())
	d.mu.Lock()
	d.last = t
	d.hasLast = true
	d.mu.Unlock()
	d.scheduleStreams()
}

func (d *Dashboard) Metrics() *Metrics {
	if d == nil {
		return nil
	}
	return d.metrics
}

// SystemWriter feeds the system log pane, one line per newline.
func (d *Dashboard) SystemWriter() io.Writer {
	if d == nil {
		return nil
	}
	return newPaneWriter(d.appendSystem)
}

func (d *Dashboard) appendSystem(line string) {
	d.system.Append(line)
	d.scheduler.Schedule("system", func() {})
}

func (d *Dashboard) scheduleStreams() {
	d.scheduler.Schedule("streams", d.drawStreams)
}

func (d *Dashboard) drawStreams() {
	d.mu.Lock()
	tree, ok := d.last, d.hasLast
	d.mu.Unlock()
	if !ok {
		return
	}
	query := d.filter.ActiveQuery()
	view := filterTree(tree, query)
	d.streamsView.SetText(render.Tview(view))

	title := streamsTitle
	if query != "" {
		title = fmt.Sprintf("%s (filter: %s, %d of %d)", streamsTitle, tview.Escape(query), len(view.Sections), len(tree.Sections))
	}
	d.streams.SetTitle(title, d.focus.index == 0)

	status := "connected"
	if tree.Degraded() {
		status = "[red::b]socket closed[-::-]"
	}
	d.setHeader(fmt.Sprintf("%s  %d rows  %s commits", status, len(tree.Rows()), humanize.Comma(int64(d.metrics.Commits()))))
}

func (d *Dashboard) setHeader(status string) {
	endpoint := d.opts.Endpoint
	if endpoint == "" {
		endpoint = "-"
	}
	d.header.SetText(accentText(tview.Escape(endpoint)) + "  " + status)
}

func (d *Dashboard) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyCtrlC {
		d.quit()
		return nil
	}
	if d.filterShown {
		return event
	}
	if d.helpShown {
		if event.Key() == tcell.KeyEsc || event.Key() == tcell.KeyF1 || event.Rune() == 'h' || event.Rune() == '?' {
			d.toggleHelp(false)
		}
		return nil
	}
	if d.focus.handleScroll(event) {
		return nil
	}

	switch event.Key() {
	case tcell.KeyF1:
		d.toggleHelp(true)
		return nil
	case tcell.KeyTab:
		d.focus.cycle(d.app, 1)
		return nil
	case tcell.KeyBacktab:
		d.focus.cycle(d.app, -1)
		return nil
	case tcell.KeyEsc:
		if d.filter.ActiveQuery() != "" {
			d.clearFilter()
			return nil
		}
		return event
	case tcell.KeyRune:
	default:
		return event
	}

	switch event.Rune() {
	case 'q', 'Q':
		d.quit()
		return nil
	case 'h', '?':
		d.toggleHelp(true)
		return nil
	case '/':
		d.showFilter()
		return nil
	}
	if d.opts.UseAlternatives {
		switch event.Rune() {
		case 's':
			d.focus.set(d.app, 0)
			return nil
		case 'l':
			d.focus.set(d.app, 1)
			return nil
		}
	}
	return event
}

func (d *Dashboard) quit() {
	if d.opts.OnQuit != nil {
		d.opts.OnQuit()
		return
	}
	d.Stop()
}

func (d *Dashboard) toggleHelp(show bool) {
	d.helpShown = show
	if show {
		d.pages.ShowPage(pageHelp)
		d.pages.SendToFront(pageHelp)
		return
	}
	d.pages.HidePage(pageHelp)
}

func (d *Dashboard) showFilter() {
	d.filterShown = true
	d.body.ResizeItem(d.filterInput, 1, 0)
	if d.app != nil {
		d.app.SetFocus(d.filterInput)
	}
}

func (d *Dashboard) hideFilter() {
	d.filterShown = false
	d.body.ResizeItem(d.filterInput, 0, 0)
	d.focus.set(d.app, d.focus.index)
}

func (d *Dashboard) clearFilter() {
	d.filter.Clear()
	d.filterInput.SetText("")
	d.scheduleStreams()
}

func newBoxedTextView(title string) *tview.TextView {
	tv := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	tv.SetBorder(true)
	if title != "" {
		tv.SetTitle(accentText(title)).SetTitleAlign(tview.AlignLeft)
	}
	tv.SetBorderColor(uiBorderColor)
	tv.SetTitleColor(uiTitleColor)
	return tv
}

func buildFooter(alternatives bool) *tview.TextView {
	text := accentText("F1") + "Help  " + accentText("Tab") + "Focus  " + accentText("/") + "Filter  "
	if alternatives {
		text += accentText("s") + "Streams  " + accentText("l") + "Log  "
	}
	return tview.NewTextView().SetDynamicColors(true).SetText(text + "[Q]Quit")
}

func buildHelpOverlay(alternatives bool) tview.Primitive {
	var b strings.Builder
	fmt.Fprintf(&b, `
KEYBOARD HELP

NAVIGATION
  %[1]sF1%[2]s / h / ?  Help   Tab / Shift+Tab  Focus pane   q / Ctrl+C  Quit
`, accentTag, accentReset)
	if alternatives {
		fmt.Fprintf(&b, "  %[1]ss%[2]s Streams pane   %[1]sl%[2]s System log\n", accentTag, accentReset)
	}
	b.WriteString(`
SCROLLING
  ↑/↓ or k/j Scroll   PageUp/Down Fast scroll   Home/End Top/Bottom

FILTER
  / Filter streams by channel   Enter Keep   Esc Clear
`)
	help := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	help.SetText(strings.TrimSpace(b.String()))
	help.SetBorder(true).SetTitle("Help")
	help.SetBorderColor(uiBorderColor)
	help.SetTitleColor(uiTitleColor)
	container := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(help, 15, 1, true).
			AddItem(nil, 0, 1, false),
			72, 1, true).
		AddItem(nil, 0, 1, false)
	return container
}

func accentText(text string) string {
	if text == "" {
		return ""
	}
	return accentTag + text + accentReset
}
