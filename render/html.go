package render

import (
	"bytes"
	"html/template"

	"github.com/DataGeek404/micro-finance-app-sub001/utils"
)

const documentTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: Arial, Helvetica, sans-serif; color: #1f2933; margin: 24px; }
  .header { display: flex; align-items: center; border-bottom: 2px solid #1e3a8a; padding-bottom: 12px; margin-bottom: 16px; }
  .header img { max-height: 56px; margin-right: 16px; }
  .org { font-size: 14px; color: #52606d; text-transform: uppercase; letter-spacing: 1px; }
  h1 { font-size: 22px; margin: 4px 0; color: #1e3a8a; }
  .subtitle { font-size: 13px; color: #52606d; }
  .generated { font-size: 12px; color: #7b8794; margin-top: 4px; }
  table { width: 100%; border-collapse: collapse; font-size: 12px; }
  th { background: #1e3a8a; color: #fff; text-align: left; padding: 8px; }
  td { padding: 6px 8px; border-bottom: 1px solid #e4e7eb; }
  tr:nth-child(even) td { background: #f5f7fa; }
  td.empty { text-align: center; color: #7b8794; font-style: italic; }
  .summary { margin-top: 20px; border: 1px solid #cbd2d9; border-radius: 4px; padding: 12px; max-width: 420px; }
  .summary h2 { font-size: 14px; margin: 0 0 8px; }
  .summary div { display: flex; justify-content: space-between; padding: 3px 0; font-size: 12px; }
  @media print { body { margin: 0; } th { -webkit-print-color-adjust: exact; print-color-adjust: exact; } }
</style>
</head>
<body>
<div class="header">
  {{- if .LogoURL}}<img src="{{.LogoURL}}" alt="logo">{{end}}
  <div>
    {{- if .OrgName}}<div class="org">{{.OrgName}}</div>{{end}}
    <h1>{{.Title}}</h1>
    {{- if .Subtitle}}<div class="subtitle">{{.Subtitle}}</div>{{end}}
    <div class="generated">Generated {{.Generated}}</div>
  </div>
</div>
<table>
  <thead><tr>{{range .Columns}}<th>{{.Label}}</th>{{end}}</tr></thead>
  <tbody>
  {{- range .Cells}}
    <tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
  {{- else}}
    <tr><td class="empty" colspan="{{.Span}}">No records</td></tr>
  {{- end}}
  </tbody>
</table>
{{- if .Summary}}
<div class="summary">
  <h2>Summary</h2>
  {{- range .Summary}}
  <div><span>{{.Label}}</span><strong>{{.Value}}</strong></div>
  {{- end}}
</div>
{{- end}}
{{- if .AutoPrint}}
<script>window.addEventListener("load", function () { window.print(); });</script>
{{- end}}
</body>
</html>
`

var documentTmpl = template.Must(template.New("document").Parse(documentTemplate))

type htmlSummary struct {
	Label string
	Value string
}

type htmlView struct {
	Title     string
	Subtitle  string
	OrgName   string
	LogoURL   string
	Generated string
	Columns   []Column
	Cells     [][]string
	Span      int
	Summary   []htmlSummary
	AutoPrint bool
}

// RenderHTML builds a self-contained printable page that opens the print dialog on load.
func RenderHTML(doc Document) ([]byte, error) {
	return renderHTML(doc, true)
}

// RenderArchiveHTML is RenderHTML without the print trigger, for stored copies.
func RenderArchiveHTML(doc Document) ([]byte, error) {
	return renderHTML(doc, false)
}

func renderHTML(doc Document, autoPrint bool) ([]byte, error) {
	cols := doc.ResolvedColumns()
	view := htmlView{
		Title:     doc.Title,
		Subtitle:  doc.Subtitle,
		OrgName:   doc.OrgName,
		LogoURL:   doc.LogoURL,
		Generated: utils.FormatDateTime(doc.GeneratedAt),
		Columns:   cols,
		Cells:     doc.Cells(cols),
		Span:      max(len(cols), 1),
		AutoPrint: autoPrint,
	}
	for _, s := range doc.Summary {
		view.Summary = append(view.Summary, htmlSummary{Label: s.Label, Value: s.Display()})
	}

	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
