package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/benchan/internal/histogram"
	"github.com/torosent/benchan/internal/metrics"
	"github.com/torosent/benchan/internal/threshold"
)

// curvePercentiles are the points plotted on the latency distribution chart.
var curvePercentiles = []float64{0, 10, 25, 50, 75, 90, 95, 99, 99.9, 99.99, 100}

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Report           *metrics.Report
	Latencies        []LatencySection
	ThresholdSummary *ThresholdSummary
	CurveJSON        string
	Rates            []RateRow
}

// LatencySection is one latency block of the report.
type LatencySection struct {
	Name    string
	Summary *histogram.Summary
}

// RateRow is one derived rate.
type RateRow struct {
	Name  string
	Value string
}

// CurvePoint is one percentile sample of a latency distribution.
type CurvePoint struct {
	Percentile float64 `json:"percentile"`
	PublishMs  float64 `json:"publish_ms"`
	DeliveryMs float64 `json:"delivery_ms"`
}

// ThresholdSummary aggregates threshold outcomes.
type ThresholdSummary struct {
	Total   int
	Passed  int
	Failed  int
	Results []threshold.Result
}

// GenerateHTMLReport generates a standalone HTML report with an embedded
// latency distribution chart.
func GenerateHTMLReport(w io.Writer, r *metrics.Report, thresholdResults []threshold.Result) error {
	if r == nil {
		return fmt.Errorf("no report to render")
	}

	var summary *ThresholdSummary
	if len(thresholdResults) > 0 {
		summary = &ThresholdSummary{Total: len(thresholdResults), Results: thresholdResults}
		for _, tr := range thresholdResults {
			if tr.Pass {
				summary.Passed++
			} else {
				summary.Failed++
			}
		}
	}

	var latencies []LatencySection
	if r.PublishLatency != nil {
		latencies = append(latencies, LatencySection{Name: "Message Publishing Latency", Summary: r.PublishLatency})
	}
	if r.DeliveryLatency != nil {
		latencies = append(latencies, LatencySection{Name: "Message Delivery Latency", Summary: r.DeliveryLatency})
	}

	curveJSON := ""
	if curve := latencyCurve(r); len(curve) > 0 {
		raw, err := json.Marshal(curve)
		if err != nil {
			return fmt.Errorf("failed to marshal latency curve: %w", err)
		}
		curveJSON = string(raw)
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Report:           r,
		Latencies:        latencies,
		ThresholdSummary: summary,
		CurveJSON:        curveJSON,
		Rates: []RateRow{
			{Name: "Send rate", Value: withUnit(r.SendRate, "/sec")},
			{Name: "Receive rate", Value: withUnit(r.ReceiveRate, "/sec")},
			{Name: "Send rate per channel", Value: withUnit(r.SendRatePerChannel, "/min")},
			{Name: "Receive rate per subscriber", Value: withUnit(r.ReceiveRatePerSubscriber, "/min")},
		},
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.3f", f)
		},
		"formatRate": func(rt metrics.Rate) string {
			return rt.Format("%.1f")
		},
		"joinFloats": joinFloats,
		"joinInts":   joinInts,
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

func latencyCurve(r *metrics.Report) []CurvePoint {
	pub, del := r.PublishHistogram(), r.DeliveryHistogram()
	if (pub == nil || pub.Count() == 0) && (del == nil || del.Count() == 0) {
		return nil
	}
	curve := make([]CurvePoint, len(curvePercentiles))
	for i, p := range curvePercentiles {
		curve[i].Percentile = p
		if pub != nil {
			curve[i].PublishMs = pub.Percentile(p)
		}
		if del != nil {
			curve[i].DeliveryMs = del.Percentile(p)
		}
	}
	return curve
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Benchan Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #0f766e 0%, #1e3a8a 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 { font-size: 2rem; margin-bottom: 10px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 40px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #0f766e;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value { font-size: 2rem; font-weight: bold; }
        .card .subvalue { font-size: 0.85rem; color: #6c757d; margin-top: 5px; }
        .card.success { border-left-color: #10b981; }
        .card.error { border-left-color: #ef4444; }
        .card.warning { border-left-color: #f59e0b; }
        .section { margin-bottom: 40px; }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart-container {
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
            border: 1px solid #e5e7eb;
        }
        .chart { width: 100%; height: 300px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 12px; border-bottom: 1px solid #e5e7eb; }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        .badge { display: inline-block; padding: 4px 12px; border-radius: 12px; font-size: 0.85rem; font-weight: 600; }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
        .badge-warning { background: #fef3c7; color: #92400e; }
        .latency-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(150px, 1fr));
            gap: 15px;
            margin-top: 20px;
        }
        .latency-item { background: #f8f9fa; padding: 15px; border-radius: 6px; text-align: center; }
        .latency-item .label { font-size: 0.85rem; color: #6c757d; margin-bottom: 5px; }
        .latency-item .value { font-size: 1.3rem; font-weight: bold; }
    </style>
    {{if .CurveJSON}}
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
    {{end}}
</head>
<body>
    <div class="container">
        <header>
            <h1>Benchan Report</h1>
            <div class="meta">Run: {{.Report.RunID}} | Generated: {{.GeneratedAt}} | Runtime: {{joinFloats .Report.RunTimes}}s</div>
            {{if .Report.Partial}}<div class="meta"><span class="badge badge-warning">PARTIAL</span> benchmark interrupted before every server finished</div>{{end}}
            {{if .Report.Degraded}}<div class="meta"><span class="badge badge-error">DEGRADED</span> {{len .Report.Failed}} of {{.Report.Servers}} servers failed</div>{{end}}
        </header>

        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Nchan Servers</h3>
                    <div class="value">{{.Report.Servers}}</div>
                    <div class="subvalue">{{len .Report.Contributors}} reported results</div>
                </div>
                <div class="card">
                    <h3>Channels</h3>
                    <div class="value">{{.Report.Channels}}</div>
                </div>
                <div class="card">
                    <h3>Subscribers</h3>
                    <div class="value">{{.Report.Subscribers}}</div>
                    <div class="subvalue">{{formatRate .Report.SubscribersPerChannel}} per channel</div>
                </div>
                <div class="card success">
                    <h3>Messages Received</h3>
                    <div class="value">{{.Report.Messages.Received}}</div>
                    <div class="subvalue">{{.Report.Messages.Unreceived}} unreceived</div>
                </div>
                <div class="card {{if .Report.Messages.SendFailed}}error{{end}}">
                    <h3>Messages Sent</h3>
                    <div class="value">{{.Report.Messages.Sent}}</div>
                    <div class="subvalue">{{.Report.Messages.SendFailed}} failed, length {{joinInts .Report.MessageLengths}}</div>
                </div>
            </div>

            <div class="section">
                <h2>Rates</h2>
                <table>
                    <tbody>
                        {{range .Rates}}
                        <tr><td>{{.Name}}</td><td>{{.Value}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>

            {{range .Latencies}}
            <div class="section">
                <h2>{{.Name}}</h2>
                <div class="latency-grid">
                    <div class="latency-item"><div class="label">Min</div><div class="value">{{formatFloat .Summary.MinMs}}ms</div></div>
                    <div class="latency-item"><div class="label">Avg</div><div class="value">{{formatFloat .Summary.MeanMs}}ms</div></div>
                    <div class="latency-item"><div class="label">P50</div><div class="value">{{formatFloat .Summary.P50Ms}}ms</div></div>
                    <div class="latency-item"><div class="label">P90</div><div class="value">{{formatFloat .Summary.P90Ms}}ms</div></div>
                    <div class="latency-item"><div class="label">P99</div><div class="value">{{formatFloat .Summary.P99Ms}}ms</div></div>
                    <div class="latency-item"><div class="label">Max</div><div class="value">{{formatFloat .Summary.MaxMs}}ms</div></div>
                    <div class="latency-item"><div class="label">Stddev</div><div class="value">{{formatFloat .Summary.StdDevMs}}ms</div></div>
                    <div class="latency-item"><div class="label">Samples</div><div class="value">{{.Summary.Count}}</div></div>
                </div>
            </div>
            {{end}}

            {{if .CurveJSON}}
            <div class="section">
                <h2>Latency Distribution</h2>
                <div class="chart-container">
                    <div id="latency-chart" class="chart"></div>
                </div>
            </div>
            {{end}}

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr><th>Threshold</th><th>Actual</th><th>Status</th></tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Expr}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">✓ PASS</span>
                                {{else}}
                                <span class="badge badge-error">✗ FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Report.Failed}}
            <div class="section">
                <h2>Failed Servers</h2>
                <table>
                    <thead><tr><th>Endpoint</th><th>Error</th></tr></thead>
                    <tbody>
                        {{range .Report.Failed}}
                        <tr><td><strong>{{.URL}}</strong></td><td>{{.Error}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .CurveJSON}}
    <script>
        const curve = JSON.parse({{.CurveJSON}});
        if (curve && curve.length > 0) {
            const el = document.getElementById('latency-chart');
            new uPlot({
                title: "Latency by Percentile",
                width: el.offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Percentile" },
                    { label: "Publishing", stroke: "#0f766e", width: 2 },
                    { label: "Delivery", stroke: "#ef4444", width: 2 }
                ],
                axes: [
                    { label: "Percentile" },
                    { label: "Latency (ms)" }
                ]
            }, [
                curve.map(d => d.percentile),
                curve.map(d => d.publish_ms),
                curve.map(d => d.delivery_ms)
            ], el);
        }
    </script>
    {{end}}
</body>
</html>
`
