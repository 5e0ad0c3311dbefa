// Package certificate renders provenance certificates for verified batches
// and caches the resulting PDFs.
package certificate

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/ayulink/herbtrace/internal/ledger"
)

// Renderer turns a verified batch into a PDF document.
type Renderer interface {
	Render(ctx context.Context, b ledger.VerifiedBatch) ([]byte, error)
}

// Options configure ChromeRenderer.
type Options struct {
	ChromiumPath string
	Timeout      time.Duration
	TimeZone     string
}

// ChromeRenderer prints the certificate HTML to PDF through headless Chromium.
type ChromeRenderer struct {
	opts Options
	loc  *time.Location
}

func NewChromeRenderer(opts Options) ChromeRenderer {
	loc, err := time.LoadLocation(defaultString(opts.TimeZone, "UTC"))
	if err != nil {
		loc = time.UTC
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return ChromeRenderer{opts: opts, loc: loc}
}

// Render returns an error when Chromium is unavailable so callers can report
// the certificate as temporarily unavailable.
func (r ChromeRenderer) Render(ctx context.Context, b ledger.VerifiedBatch) ([]byte, error) {
	html, err := RenderHTML(b, r.loc, time.Now())
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if r.opts.ChromiumPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(r.opts.ChromiumPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	runCtx, cancelRun := chromedp.NewContext(allocCtx)
	defer cancelRun()
	runCtx, cancelTimeout := context.WithTimeout(runCtx, r.opts.Timeout)
	defer cancelTimeout()

	var pdf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("data:text/html,"+url.PathEscape(html)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err == nil {
				pdf = buf
			}
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	return pdf, nil
}

type certificateView struct {
	Batch     ledger.VerifiedBatch
	Events    []eventView
	Score     string
	Quantity  string
	Generated string
}

type eventView struct {
	Sequence    int
	Status      string
	Stakeholder string
	Location    string
	Notes       string
	Recorded    string
	Committed   string
	Hash        string
}

var certificateTemplate = template.Must(template.New("certificate").Funcs(template.FuncMap{
	"short": func(h string) string {
		if len(h) > 16 {
			return h[:16]
		}
		return h
	},
}).Parse(htmlTemplate))

// RenderHTML builds the certificate markup. Times are shown in loc.
func RenderHTML(b ledger.VerifiedBatch, loc *time.Location, now time.Time) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	view := certificateView{
		Batch:     b,
		Score:     fmt.Sprintf("%.2f / 10", b.QualityScore),
		Quantity:  fmt.Sprintf("%g kg", b.QuantityKg),
		Generated: now.In(loc).Format("2006-01-02 15:04 MST"),
	}
	for _, ev := range b.History {
		view.Events = append(view.Events, eventView{
			Sequence:    ev.Sequence,
			Status:      string(ev.Status),
			Stakeholder: ev.Stakeholder,
			Location:    ev.Location,
			Notes:       ev.Notes,
			Recorded:    ev.EventTimestamp.In(loc).Format("2006-01-02 15:04"),
			Committed:   ev.BlockTimestamp.In(loc).Format("2006-01-02 15:04:05"),
			Hash:        ev.Hash,
		})
	}
	var buf bytes.Buffer
	if err := certificateTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

const htmlTemplate = `
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <style>
    @page { size: A4; margin: 16mm; }
    body { font-family: 'Helvetica Neue', Arial, sans-serif; color: #14532d; }
    h1 { margin: 0 0 4px; }
    .sub { color: #4b5563; font-size: 12px; }
    .card { border: 1px solid #d1fae5; border-radius: 8px; padding: 12px; margin: 12px 0; }
    .row { display: flex; gap: 12px; }
    .col { flex: 1; }
    .label { font-size: 11px; color: #6b7280; text-transform: uppercase; }
    .value { font-size: 14px; margin-bottom: 6px; }
    .ok { color: #15803d; font-weight: 700; }
    .bad { color: #b91c1c; font-weight: 700; }
    table { width: 100%; border-collapse: collapse; font-size: 12px; }
    th, td { padding: 6px; border-bottom: 1px solid #e5e7eb; text-align: left; }
    th { background: #f0fdf4; }
    code { font-size: 10px; }
  </style>
</head>
<body>
  <h1>Certificate of Provenance</h1>
  <div class="sub">Batch {{.Batch.BatchID}} &middot; generated {{.Generated}}</div>

  <div class="card">
    <div class="row">
      <div class="col">
        <div class="label">Herb</div><div class="value">{{.Batch.HerbType}}</div>
        <div class="label">Quantity</div><div class="value">{{.Quantity}}</div>
        <div class="label">Farming method</div><div class="value">{{.Batch.FarmingMethod}}</div>
        <div class="label">Quality score</div><div class="value">{{.Score}}</div>
      </div>
      <div class="col">
        <div class="label">Farmer</div><div class="value">{{.Batch.FarmerName}}</div>
        <div class="label">Origin</div><div class="value">{{.Batch.Location}}</div>
        <div class="label">GPS</div><div class="value">{{.Batch.GPSCoordinates}}</div>
        <div class="label">Harvest date</div><div class="value">{{.Batch.HarvestDate}}</div>
      </div>
    </div>
  </div>

  <div class="card">
    <div class="label">Record integrity</div>
    {{if .Batch.Integrity.Valid}}
    <div class="value ok">Verified: {{.Batch.Integrity.Length}} linked records</div>
    <div class="value"><code>{{.Batch.Integrity.HeadHash}}</code></div>
    {{else}}
    <div class="value bad">Chain broken at record {{.Batch.Integrity.BrokenAt}}</div>
    {{end}}
  </div>

  <table>
    <thead>
      <tr><th>#</th><th>Stage</th><th>Stakeholder</th><th>Location</th><th>Recorded</th><th>Committed</th><th>Hash</th></tr>
    </thead>
    <tbody>
    {{range .Events}}
      <tr>
        <td>{{.Sequence}}</td>
        <td>{{.Status}}</td>
        <td>{{.Stakeholder}}</td>
        <td>{{.Location}}{{if .Notes}}<br/><span class="sub">{{.Notes}}</span>{{end}}</td>
        <td>{{.Recorded}}</td>
        <td>{{.Committed}}</td>
        <td><code>{{short .Hash}}</code></td>
      </tr>
    {{end}}
    </tbody>
  </table>
</body>
</html>
`
