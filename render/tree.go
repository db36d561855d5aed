// Package render turns a telemetry snapshot into a typed render tree and
// serializes that tree for the output surfaces.
//
// Render is pure: it performs no I/O and allocates a fresh Tree per call.
// Markup only appears in the formatters (Text, Tview, HTML).
package render

// SectionKind distinguishes the blocks of a Tree.
type SectionKind uint8

const (
	SectionSystem SectionKind = iota
	SectionStream
	SectionDegraded
)

func (k SectionKind) String() string {
	switch k {
	case SectionSystem:
		return "system"
	case SectionStream:
		return "stream"
	case SectionDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// RowGroup tells the formatters which block a row belongs to.
type RowGroup uint8

const (
	GroupSystem RowGroup = iota
	GroupPublisher
	GroupSubscriber
)

type RowKind uint8

const (
	RowStat RowKind = iota
	RowSpacer
)

// Row is one labeled value. Value is the verbatim decimal form of the
// underlying number (or the text for Context rows); Numeric marks values the
// formatters may digit-group.
type Row struct {
	Group       RowGroup
	Kind        RowKind
	Label       string
	Value       string
	Numeric     bool
	Highlighted bool
	// BottomBar closes a visual block (publisher, receiver or registration).
	BottomBar bool
}

// Section is a titled run of rows. Channel, StreamID and IPC are set on
// stream sections only.
type Section struct {
	Kind     SectionKind
	Title    string
	Channel  string
	StreamID string
	IPC      bool
	Rows     []Row
}

// Tree is the complete, ordered output of one render pass.
type Tree struct {
	Sections []Section
}

// DegradedTitle is the text of the fixed "connection closed" indicator.
const DegradedTitle = "Socket closed"

// Degraded returns the indicator committed when no transport is available.
func Degraded() Tree {
	return Tree{Sections: []Section{{Kind: SectionDegraded, Title: DegradedTitle}}}
}

// Degraded reports whether t is the connection-closed indicator.
func (t Tree) Degraded() bool {
	return len(t.Sections) == 1 && t.Sections[0].Kind == SectionDegraded
}

// Rows returns every row of every section, in order.
func (t Tree) Rows() []Row {
	n := 0
	for i := range t.Sections {
		n += len(t.Sections[i].Rows)
	}
	if n == 0 {
		return nil
	}
	out := make([]Row, 0, n)
	for i := range t.Sections {
		out = append(out, t.Sections[i].Rows...)
	}
	return out
}

// Highlighted counts highlighted rows.
func (t Tree) Highlighted() int {
	n := 0
	for i := range t.Sections {
		for _, row := range t.Sections[i].Rows {
			if row.Highlighted {
				n++
			}
		}
	}
	return n
}
