package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

var (
	focusBorderColor = tcell.ColorHotPink
	focusMarker      = " [::b]*[::-]"
)

// focusable is a pane that takes part in Tab focus cycling.
type focusable interface {
	Primitive() tview.Primitive
	SetFocused(focused bool)
	HandleScroll(event *tcell.EventKey) bool
}

// focusBox wraps a boxed TextView with focus styling.
type focusBox struct {
	tv        *tview.TextView
	baseTitle string
}

func newFocusBox(tv *tview.TextView, baseTitle string) *focusBox {
	return &focusBox{tv: tv, baseTitle: baseTitle}
}

func (b *focusBox) Primitive() tview.Primitive {
	if b == nil {
		return nil
	}
	return b.tv
}

func (b *focusBox) SetFocused(focused bool) {
	if b == nil {
		return
	}
	applyFocusBoxStyle(b.tv.Box, b.baseTitle, focused)
}

func (b *focusBox) SetTitle(title string, focused bool) {
	if b == nil {
		return
	}
	b.baseTitle = title
	applyFocusBoxStyle(b.tv.Box, title, focused)
}

func (b *focusBox) HandleScroll(event *tcell.EventKey) bool {
	if b == nil {
		return false
	}
	return scrollTextView(b.tv, event)
}

func applyFocusBoxStyle(box *tview.Box, title string, focused bool) {
	if box == nil {
		return
	}
	text := accentText(title)
	color := uiBorderColor
	if focused {
		text += focusMarker
		color = focusBorderColor
	}
	box.SetTitle(text).SetTitleAlign(tview.AlignLeft)
	box.SetBorderColor(color)
	box.SetTitleColor(uiTitleColor)
}

// focusGroup cycles focus across panes and routes scroll keys to the
// focused one.
type focusGroup struct {
	items []focusable
	index int
}

func newFocusGroup(items ...focusable) focusGroup {
	filtered := make([]focusable, 0, len(items))
	for _, item := range items {
		if item == nil || item.Primitive() == nil {
			continue
		}
		filtered = append(filtered, item)
	}
	return focusGroup{items: filtered}
}

func (g *focusGroup) set(app *tview.Application, idx int) {
	if g == nil || len(g.items) == 0 {
		return
	}
	if idx < 0 || idx >= len(g.items) {
		idx = 0
	}
	g.index = idx
	for i, item := range g.items {
		item.SetFocused(i == idx)
	}
	if app != nil {
		app.SetFocus(g.items[idx].Primitive())
	}
}

func (g *focusGroup) cycle(app *tview.Application, delta int) {
	if g == nil || len(g.items) == 0 {
		return
	}
	next := g.index + delta
	if next < 0 {
		next = len(g.items) - 1
	} else if next >= len(g.items) {
		next = 0
	}
	g.set(app, next)
}

// handleScroll sends event to the focused pane.
func (g *focusGroup) handleScroll(event *tcell.EventKey) bool {
	if g == nil || event == nil || len(g.items) == 0 {
		return false
	}
	return g.items[g.index].HandleScroll(event)
}

func scrollTextView(target *tview.TextView, event *tcell.EventKey) bool {
	if target == nil || event == nil {
		return false
	}
	row, col := target.GetScrollOffset()
	page := 10
	_, _, _, height := target.GetInnerRect()
	if height > 1 {
		page = height - 1
	}
	switch event.Key() {
	case tcell.KeyUp:
		if row > 0 {
			row--
		}
	case tcell.KeyDown:
		row++
	case tcell.KeyPgUp:
		row -= page
		if row < 0 {
			row = 0
		}
	case tcell.KeyPgDn:
		row += page
	case tcell.KeyHome:
		row = 0
	case tcell.KeyEnd:
		target.ScrollToEnd()
		return true
	case tcell.KeyRune:
		switch event.Rune() {
		case 'k':
			if row > 0 {
				row--
			}
		case 'j':
			row++
		default:
			return false
		}
	default:
		return false
	}
	target.ScrollTo(row, col)
	return true
}
