package ui

import (
	"strconv"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// lineRing keeps the newest max lines and counts everything ever appended.
type lineRing struct {
	lines []string
	head  int
	count int
	total uint64
}

func newLineRing(max int) lineRing {
	if max <= 0 {
		max = 1
	}
	return lineRing{lines: make([]string, max)}
}

func (r *lineRing) append(line string) {
	if r.count < len(r.lines) {
		r.lines[(r.head+r.count)%len(r.lines)] = line
		r.count++
	} else {
		r.lines[r.head] = line
		r.head = (r.head + 1) % len(r.lines)
	}
	r.total++
}

func (r *lineRing) at(i int) string {
	return r.lines[(r.head+i)%len(r.lines)]
}

// evicted is the number of lines no longer held.
func (r *lineRing) evicted() uint64 {
	return r.total - uint64(r.count)
}

// logView is the bounded system log pane. Only visible rows are drawn; a
// trailing marker reports how many lines have been evicted.
// Append may be called from any goroutine; Draw and HandleScroll run on the
// UI goroutine.
type logView struct {
	*tview.Box

	mu        sync.Mutex
	ring      lineRing
	offset    int
	follow    bool
	focused   bool
	baseTitle string
	rows      []string
}

func newLogView(title string, max int) *logView {
	v := &logView{
		Box:       tview.NewBox().SetBorder(true),
		ring:      newLineRing(max),
		follow:    true,
		baseTitle: title,
	}
	applyFocusBoxStyle(v.Box, title, false)
	return v
}

func (v *logView) Primitive() tview.Primitive {
	if v == nil {
		return nil
	}
	return v
}

func (v *logView) SetFocused(focused bool) {
	if v == nil {
		return
	}
	v.mu.Lock()
	v.focused = focused
	v.mu.Unlock()
	applyFocusBoxStyle(v.Box, v.baseTitle, focused)
}

func (v *logView) Append(line string) {
	if v == nil {
		return
	}
	v.mu.Lock()
	v.ring.append(line)
	v.mu.Unlock()
}

// Text returns the held lines plus the eviction marker, oldest first.
func (v *logView) Text() string {
	if v == nil {
		return ""
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	rows := make([]string, 0, v.ring.count+1)
	for i := 0; i < v.ring.count; i++ {
		rows = append(rows, v.ring.at(i))
	}
	if n := v.ring.evicted(); n > 0 {
		rows = append(rows, evictedMarker(n))
	}
	return strings.Join(rows, "\n")
}

func evictedMarker(n uint64) string {
	return "... +" + strconv.FormatUint(n, 10) + " earlier"
}

func (v *logView) totalRowsLocked() int {
	rows := v.ring.count
	if v.ring.evicted() > 0 {
		rows++
	}
	return rows
}

func (v *logView) maxOffsetLocked(height int) int {
	if m := v.totalRowsLocked() - height; m > 0 {
		return m
	}
	return 0
}

func (v *logView) Draw(screen tcell.Screen) {
	if v == nil {
		return
	}
	v.Box.DrawForSubclass(screen, v)
	x, y, width, height := v.GetInnerRect()
	if width <= 0 || height <= 0 {
		return
	}

	v.mu.Lock()
	maxOffset := v.maxOffsetLocked(height)
	if v.follow || !v.focused || v.offset > maxOffset {
		v.offset = maxOffset
	}
	end := v.offset + height
	if total := v.totalRowsLocked(); end > total {
		end = total
	}
	v.rows = v.rows[:0]
	for row := v.offset; row < end; row++ {
		if row < v.ring.count {
			v.rows = append(v.rows, v.ring.at(row))
			continue
		}
		v.rows = append(v.rows, evictedMarker(v.ring.evicted()))
	}
	rows := v.rows
	v.mu.Unlock()

	for i, row := range rows {
		drawPlainLine(screen, x, y+i, width, row, v.GetBackgroundColor())
	}
}

func (v *logView) HandleScroll(event *tcell.EventKey) bool {
	if v == nil || event == nil {
		return false
	}
	_, _, _, height := v.GetInnerRect()
	if height < 1 {
		height = 1
	}
	page := height - 1
	if page < 1 {
		page = 1
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	maxOffset := v.maxOffsetLocked(height)
	next := v.offset
	switch event.Key() {
	case tcell.KeyUp:
		next--
	case tcell.KeyDown:
		next++
	case tcell.KeyPgUp:
		next -= page
	case tcell.KeyPgDn:
		next += page
	case tcell.KeyHome:
		next = 0
	case tcell.KeyEnd:
		next = maxOffset
	case tcell.KeyRune:
		switch event.Rune() {
		case 'k':
			next--
		case 'j':
			next++
		default:
			return false
		}
	default:
		return false
	}
	if next < 0 {
		next = 0
	}
	if next > maxOffset {
		next = maxOffset
	}
	v.offset = next
	v.follow = next == maxOffset
	return true
}

// drawPlainLine prints text without interpreting color tags, so log lines
// are shown exactly as written.
func drawPlainLine(screen tcell.Screen, x, y, width int, text string, bg tcell.Color) {
	if width <= 0 {
		return
	}
	style := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(bg)
	col := 0
	screen.SetContent(x+col, y, ' ', nil, style)
	col++
	for _, r := range text {
		if col >= width || r == '\n' || r == '\r' {
			return
		}
		if r == '\t' {
			r = ' '
		}
		screen.SetContent(x+col, y, r, nil, style)
		col++
	}
}
