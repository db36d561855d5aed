package render

import (
	"html/template"
	"io"
	"strconv"
)

type htmlRow struct {
	Spacer     bool
	System     bool
	RowClass   string
	ValueClass string
	Label      string
	Value      string
}

type htmlSection struct {
	Title string
	Rows  []htmlRow
}

type htmlView struct {
	Degraded bool
	Title    string
	Sections []htmlSection
}

// PageOptions controls the standalone document written by HTMLPage.
type PageOptions struct {
	Title string
	// RefreshSeconds adds a meta refresh when positive.
	RefreshSeconds int
}

var htmlTemplates = template.Must(template.New("render").Parse(`
{{- define "tree" -}}
{{- if .Degraded -}}
<h1>{{.Title}}</h1>
{{- else -}}
{{- range .Sections -}}
<div class="channel row bottom-bar top-bar"><div class="stream col-md-12">{{.Title}}</div></div>
{{- range .Rows}}
{{if .Spacer -}}
<div class="row"><div class="col-md-12"></div></div>
{{- else if .System -}}
<div class="row"><div class="col-md-6 system-stat">{{.Label}}</div><div class="col-md-6 system-stat">{{.Value}}</div></div>
{{- else -}}
<div class="{{.RowClass}}"><div class="col-md-4"></div><div class="col-md-4 stat-label">{{.Label}}</div><div class="{{.ValueClass}}">{{.Value}}</div></div>
{{- end -}}
{{- end}}
{{end -}}
{{- end -}}
{{- end -}}

{{- define "page" -}}
<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
{{- with .Refresh}}
{{.}}
{{- end}}
<title>{{.Title}}</title>
<style>
body { font-family: monospace; background: #111; color: #ddd; }
.row { display: flex; }
.col-md-4 { width: 33%; } .col-md-6 { width: 50%; } .col-md-12 { width: 100%; }
.top-bar { border-top: 1px solid #555; } .bottom-bar { border-bottom: 1px solid #333; }
.stream { color: #ff69b4; font-weight: bold; padding-top: 0.5em; }
.pub-data-highlight, .sub-data-highlight { color: #ff4040; font-weight: bold; }
</style>
</head>
<body>
<div id="stream-data">
{{template "tree" .Tree}}
</div>
</body>
</html>
{{end -}}
`))

func htmlViewOf(t Tree) htmlView {
	if t.Degraded() {
		return htmlView{Degraded: true, Title: t.Sections[0].Title}
	}
	v := htmlView{Sections: make([]htmlSection, 0, len(t.Sections))}
	for i := range t.Sections {
		sec := &t.Sections[i]
		hs := htmlSection{Title: sec.Title, Rows: make([]htmlRow, 0, len(sec.Rows))}
		for _, row := range sec.Rows {
			hs.Rows = append(hs.Rows, htmlRowOf(row))
		}
		v.Sections = append(v.Sections, hs)
	}
	return v
}

func htmlRowOf(row Row) htmlRow {
	if row.Kind == RowSpacer {
		return htmlRow{Spacer: true}
	}
	if row.Group == GroupSystem {
		return htmlRow{System: true, Label: row.Label, Value: row.Value}
	}
	prefix, highlight := "pub", "pub-data-highlight"
	if row.Group == GroupSubscriber {
		prefix, highlight = "sub", "sub-data-highlight"
	}
	h := htmlRow{
		RowClass:   "row " + prefix + "-data",
		ValueClass: "col-md-4 " + prefix + "-stat",
		Label:      row.Label,
		Value:      row.Value,
	}
	if row.BottomBar {
		h.RowClass += " bottom-bar"
	}
	if row.Highlighted {
		h.ValueClass += " " + highlight
	}
	return h
}

// HTML writes the fragment that fills the stream-data region. All text is
// escaped by html/template.
func HTML(w io.Writer, t Tree) error {
	return htmlTemplates.ExecuteTemplate(w, "tree", htmlViewOf(t))
}

// HTMLPage writes a complete document around the HTML fragment.
func HTMLPage(w io.Writer, t Tree, opts PageOptions) error {
	title := opts.Title
	if title == "" {
		title = "aethermon"
	}
	var refresh template.HTML
	if opts.RefreshSeconds > 0 {
		refresh = template.HTML(`<meta http-equiv="refresh" content="` + strconv.Itoa(opts.RefreshSeconds) + `">`)
	}
	return htmlTemplates.ExecuteTemplate(w, "page", struct {
		Title   string
		Refresh template.HTML
		Tree    htmlView
	}{title, refresh, htmlViewOf(t)})
}
