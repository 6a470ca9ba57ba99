package report

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"time"
)

// reportTemplate renders the competitor-facing score page. Styling is kept
// self-contained so the report works from a bare file:// open.
const reportTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>ZekaEngine: {{ .Title }}</title>
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <style>
    :root{--bg:#fafbff;--panel:#ffffff;--text:#0b0c0e;--muted:#606671;--line:#e7eaf0;--chip:#f3f5f9;}
    *{box-sizing:border-box}
    html,body{margin:0;padding:0;background:var(--bg);color:var(--text)}
    body{font:14px/1.55 ui-sans-serif,system-ui,-apple-system,"Segoe UI",Roboto,Arial,sans-serif}
    .wrap{max-width:760px;margin:48px auto;padding:0 20px}
    header{margin-bottom:20px}
    h1{margin:0 0 6px;font-size:24px;letter-spacing:.2px}
    .stamp{color:var(--muted);font-size:13px}
    .card{background:var(--panel);border:1px solid var(--line);border-radius:14px;padding:14px}
    ul.vulns{list-style:none;margin:0;padding:0;display:grid;gap:8px}
    .summary{margin:4px 0 12px;color:black;font-size:16px}
    .empty{color:var(--muted);text-align:center;padding:24px 8px}
    .vuln{display:flex;align-items:center;justify-content:space-between;gap:12px;padding:10px 12px;border:1px solid var(--line);border-radius:12px;background:#fff}
    .vtext{overflow:hidden;text-overflow:ellipsis;white-space:nowrap}
    .pts{font-size:12px;color:var(--muted);background:var(--chip);border:1px solid var(--line);padding:4px 8px;border-radius:999px;white-space:nowrap}
    footer.footer{margin-top:24px;color:var(--muted);font-size:12px;text-align:center}
  </style>
</head>
<body>
  <main class="wrap">
    <header>
      <h1>{{ .Title }}</h1>
      <div class="stamp">Report generated at: {{ .Timestamp }}</div>
    </header>

    <section class="card">
      {{ if eq (len .Vulns) 0 }}
        <div class="empty">You have not scored any points yet.</div>
      {{ else }}
        <div class="summary">{{ len .Vulns }} vulnerabilit{{ if eq (len .Vulns) 1 }}y{{ else }}ies{{ end }} scored for a total of {{ .Total }} pts</div>
        <ul class="vulns">
          {{ range .Vulns }}
            <li class="vuln">
              <span class="vtext">{{ .Title }}</span>
              <span class="pts">{{ .Points }} pts</span>
            </li>
          {{ end }}
        </ul>
      {{ end }}
    </section>

    <footer class="footer">Scored by ZekaEngine.</footer>
  </main>
</body>
</html>
`

var tmpl = template.Must(template.New("report").Parse(reportTemplate))

type renderVuln struct {
	Title  string
	Points string
}

type renderData struct {
	Title     string
	Timestamp string
	Total     string
	Vulns     []renderVuln
}

// Render produces the HTML report at the given timestamp.
func (r *Report) Render(now time.Time) ([]byte, error) {
	data := renderData{
		Title:     r.title,
		Timestamp: now.Format("01/02/2006 15:04:05 UTC"),
		Total:     formatPoints(r.Total()),
	}
	for _, v := range r.Vulnerabilities() {
		data.Vulns = append(data.Vulns, renderVuln{Title: v.Title, Points: formatPoints(v.Points)})
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// formatPoints prints whole values without a decimal tail.
func formatPoints(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
