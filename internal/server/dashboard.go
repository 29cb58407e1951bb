package server

import (
	"html/template"
	"math"
	"net/http"

	"github.com/KaramelBytes/crmlens/internal/pipeline"
	"github.com/KaramelBytes/crmlens/internal/report"
	"github.com/KaramelBytes/crmlens/internal/table"
)

const maxDashboardRows = 500

var pages = template.Must(template.New("layout").Parse(layoutHTML))

func init() {
	template.Must(pages.New("index").Parse(indexHTML))
	template.Must(pages.New("dashboard").Parse(dashboardHTML))
	template.Must(pages.New("error").Parse(errorHTML))
}

type gridView struct {
	Header    []string
	Rows      [][]string
	Anomalous []bool
	Hidden    int
}

type barView struct {
	Label   string
	Value   float64
	Percent float64
}

type dashboardView struct {
	Summary   *report.Summary
	Results   gridView
	Anomalies gridView
	Bars      []barView
	MaxUpload int64
}

func newGrid(t *table.Table) gridView {
	g := gridView{Header: t.Header()}
	n := t.Len()
	if n > maxDashboardRows {
		g.Hidden = n - maxDashboardRows
		n = maxDashboardRows
	}
	for i := 0; i < n; i++ {
		g.Rows = append(g.Rows, t.Row(i))
		g.Anomalous = append(g.Anomalous, report.IsAnomalous(t, i))
	}
	return g
}

func newBars(bars []report.Bar) []barView {
	peak := 0.0
	for _, b := range bars {
		peak = math.Max(peak, b.Value)
	}
	out := make([]barView, len(bars))
	for i, b := range bars {
		pct := 0.0
		if peak > 0 {
			pct = math.Round(b.Value/peak*1000) / 10
		}
		out[i] = barView{Label: b.Label, Value: b.Value, Percent: pct}
	}
	return out
}

func newDashboard(res *pipeline.Result, name string) *dashboardView {
	s := report.Summarize(res, name)
	return &dashboardView{
		Summary:   s,
		Results:   newGrid(res.Table),
		Anomalies: newGrid(res.Anomalies),
		Bars:      newBars(report.TopBars(s.Sales, 30)),
	}
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.log.ErrorContext(r.Context(), "render template", "template", name, "error", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, "index", &dashboardView{MaxUpload: s.cfg.Server.MaxUploadBytes})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	res, name, err := s.analyze(w, r)
	if err != nil {
		p := s.problem(r, err)
		s.renderPage(w, r, p.Status, "error", p)
		return
	}
	s.renderPage(w, r, http.StatusOK, "dashboard", newDashboard(res, name))
}

const layoutHTML = `{{define "head"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>crmlens</title>
<style>
body{font-family:system-ui,sans-serif;margin:2rem;color:#222}
table{border-collapse:collapse;font-size:.85rem;margin-bottom:1rem}
th,td{border:1px solid #ccc;padding:.25rem .5rem;text-align:left}
th{background:#f3f3f3}
tr.anomaly td{background:#fde2e2}
.bar{display:flex;align-items:center;gap:.5rem;font-size:.85rem}
.bar .label{width:14rem;overflow:hidden;text-overflow:ellipsis;white-space:nowrap}
.bar .fill{background:#4a78c2;height:1rem}
.note{color:#777;font-size:.8rem}
</style>
</head>
<body>
<h1>CRM Data Analysis</h1>
{{end}}
{{define "foot"}}</body>
</html>
{{end}}
{{define "grid"}}
<table>
<thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range $i, $row := .Rows}}<tr{{if index $.Anomalous $i}} class="anomaly"{{end}}>{{range $row}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
{{if .Hidden}}<p class="note">{{.Hidden}} more rows not shown.</p>{{end}}
{{end}}`

const indexHTML = `{{template "head"}}
<form method="post" action="/dashboard" enctype="multipart/form-data">
<p>Upload a CRM export (CSV or XLSX with Email, Phone and Company columns).</p>
<input type="file" name="file" accept=".csv,.tsv,.xlsx" required>
<button type="submit">Analyze</button>
<p class="note">Maximum upload size: {{.MaxUpload}} bytes.</p>
</form>
{{template "foot"}}`

const dashboardHTML = `{{template "head"}}
{{with .Summary}}
<p>{{if .Name}}<strong>{{.Name}}</strong>: {{end}}{{.Records}} records, {{.Anomalies}} anomalies, {{.Cleaning.DuplicatesRemoved}} duplicates removed. Run {{.RunID}}.</p>
{{end}}
<h2>Cleaned CRM Data</h2>
{{template "grid" .Results}}
<h2>Anomalies Detected</h2>
{{if .Anomalies.Rows}}{{template "grid" .Anomalies}}{{else}}<p>No anomalous records.</p>{{end}}
<h2>Predicted Sales Outcomes</h2>
{{range .Bars}}<div class="bar"><span class="label">{{.Label}}</span><span class="fill" style="width:{{.Percent}}%"></span><span>{{printf "%.2f" .Value}}</span></div>
{{end}}
<p class="note">Predictions come from a model trained on simulated data.</p>
<p><a href="/">Analyze another file</a></p>
{{template "foot"}}`

const errorHTML = `{{template "head"}}
<h2>{{.Title}}</h2>
<p>{{.Detail}}</p>
<p><a href="/">Back</a></p>
{{template "foot"}}`
