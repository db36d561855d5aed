package render

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rivo/tview"
)

const (
	labelWidth = 22
	ruleWidth  = 40

	accentTag      = "[#ff69b4]"
	accentReset    = "[-]"
	highlightTag   = "[red::b]"
	highlightReset = "[-::-]"
	ruleTag        = "[gray]"
)

// DisplayValue returns the value as shown to humans: numbers are digit
// grouped, everything else is returned unchanged.
func DisplayValue(r Row) string {
	if !r.Numeric {
		return r.Value
	}
	if v, err := strconv.ParseInt(r.Value, 10, 64); err == nil {
		return humanize.Comma(v)
	}
	if f, err := strconv.ParseFloat(r.Value, 64); err == nil {
		return humanize.Commaf(f)
	}
	return r.Value
}

func indentFor(g RowGroup) string {
	switch g {
	case GroupPublisher:
		return "  "
	case GroupSubscriber:
		return "    "
	default:
		return "  "
	}
}

// Text writes t as plain fixed-width text. Highlighted values are wrapped in
// asterisks and every bottom-bar row is followed by a rule.
func Text(w io.Writer, t Tree) error {
	bw := bufio.NewWriter(w)
	if t.Degraded() {
		fmt.Fprintf(bw, "== %s ==\n", t.Sections[0].Title)
		return bw.Flush()
	}
	rule := strings.Repeat("-", ruleWidth)
	for i := range t.Sections {
		sec := &t.Sections[i]
		if i > 0 {
			bw.WriteByte('\n')
		}
		fmt.Fprintf(bw, "== %s ==\n", sec.Title)
		for _, row := range sec.Rows {
			indent := indentFor(row.Group)
			if row.Kind == RowSpacer {
				bw.WriteByte('\n')
				continue
			}
			value := DisplayValue(row)
			if row.Highlighted {
				value = "*" + value + "*"
			}
			fmt.Fprintf(bw, "%s%-*s %s\n", indent, labelWidth, row.Label, value)
			if row.BottomBar {
				fmt.Fprintf(bw, "%s%s\n", indent, rule)
			}
		}
	}
	return bw.Flush()
}

// Tview returns t as tview dynamic-color text. Every label, title and value
// is escaped so snapshot content can never inject color tags.
func Tview(t Tree) string {
	var b strings.Builder
	if t.Degraded() {
		b.WriteString(highlightTag)
		b.WriteString(tview.Escape(t.Sections[0].Title))
		b.WriteString(highlightReset)
		b.WriteByte('\n')
		return b.String()
	}
	for i := range t.Sections {
		sec := &t.Sections[i]
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(accentTag)
		b.WriteString(tview.Escape(sec.Title))
		b.WriteString(accentReset)
		if sec.Kind == SectionStream && sec.IPC {
			b.WriteString(" [gray](ipc)[-]")
		}
		b.WriteByte('\n')
		for _, row := range sec.Rows {
			if row.Kind == RowSpacer {
				b.WriteByte('\n')
				continue
			}
			indent := indentFor(row.Group)
			b.WriteString(indent)
			b.WriteString(tview.Escape(fmt.Sprintf("%-*s", labelWidth, row.Label)))
			b.WriteByte(' ')
			value := tview.Escape(DisplayValue(row))
			if row.Highlighted {
				b.WriteString(highlightTag)
				b.WriteString(value)
				b.WriteString(highlightReset)
			} else {
				b.WriteString(value)
			}
			b.WriteByte('\n')
			if row.BottomBar {
				b.WriteString(indent)
				b.WriteString(ruleTag)
				b.WriteString(strings.Repeat("─", ruleWidth))
				b.WriteString(accentReset)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}
