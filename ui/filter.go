package ui

import (
	"context"
	"strings"
	"sync"
	"time"

	"aethermon/render"
)

const filterDebounce = 250 * time.Millisecond

// SectionFilter narrows the stream sections shown by the dashboard. Query
// edits are debounced so typing does not redraw on every key.
type SectionFilter struct {
	mu          sync.RWMutex
	query       string
	activeQuery string
	timer       *time.Timer
	ctx         context.Context
	onChange    func()
	debounce    time.Duration
}

func NewSectionFilter(ctx context.Context) *SectionFilter {
	return &SectionFilter{ctx: ctx, debounce: filterDebounce}
}

// SetQuery stages a new query; onChange runs once it becomes active.
func (s *SectionFilter) SetQuery(query string, onChange func()) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.query = strings.ToLower(strings.TrimSpace(query))
	s.onChange = onChange
	if s.ctx != nil && s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.fire)
	} else {
		s.timer.Reset(s.debounce)
	}
	s.mu.Unlock()
}

// Clear drops the query immediately.
func (s *SectionFilter) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.query = ""
	s.activeQuery = ""
	s.mu.Unlock()
}

func (s *SectionFilter) ActiveQuery() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeQuery
}

func (s *SectionFilter) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
}

func (s *SectionFilter) fire() {
	if s.ctx != nil && s.ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	s.activeQuery = s.query
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Apply returns t limited to the stream sections whose title contains the
// active query. System sections and the degraded indicator always pass.
func (s *SectionFilter) Apply(t render.Tree) render.Tree {
	return filterTree(t, s.ActiveQuery())
}

func filterTree(t render.Tree, query string) render.Tree {
	if query == "" || t.Degraded() {
		return t
	}
	out := render.Tree{Sections: make([]render.Section, 0, len(t.Sections))}
	for _, sec := range t.Sections {
		if sec.Kind != render.SectionStream || strings.Contains(strings.ToLower(sec.Title), query) {
			out.Sections = append(out.Sections, sec)
		}
	}
	return out
}
