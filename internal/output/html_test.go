package output_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/torosent/benchan/internal/histogram"
	"github.com/torosent/benchan/internal/metrics"
	"github.com/torosent/benchan/internal/output"
	"github.com/torosent/benchan/internal/protocol"
	"github.com/torosent/benchan/internal/threshold"
)

func sampleReport(t *testing.T, withHistograms bool) *metrics.Report {
	t.Helper()
	p := &protocol.ResultPayload{
		Channels:      4,
		Subscribers:   40,
		RunTimeSec:    30,
		MessageLength: 512,
		Messages:      protocol.MessageCounts{Sent: 1200, Received: 12000},
	}
	if withHistograms {
		h := histogram.New()
		for _, us := range []int64{800, 1200, 4000, 9000} {
			if err := h.RecordMicros(us); err != nil {
				t.Fatal(err)
			}
		}
		p.DeliveryLatency = h
	}
	agg := metrics.NewAggregator()
	if err := agg.Ingest("ws://nchan-1/bench", p); err != nil {
		t.Fatal(err)
	}
	r := agg.Report(1)
	r.RunID = "01HZXRUN"
	return r
}

func TestGenerateHTMLReport(t *testing.T) {
	results := []threshold.Result{
		{Expr: "delivery_latency:p99 < 50", Actual: 9, Pass: true},
		{Expr: "messages_unreceived:count == 0", Actual: 3, Pass: false},
	}

	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, sampleReport(t, true), results); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		"<!DOCTYPE html>",
		"Benchan Report",
		"01HZXRUN",
		"Message Delivery Latency",
		"Latency Distribution",
		"uPlot",
		"Thresholds (1/2 Passed)",
		"✗ FAIL",
		"40.000/sec",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(html, "Message Publishing Latency") {
		t.Error("publishing latency section should be omitted without a histogram")
	}
}

func TestGenerateHTMLReport_NoHistograms(t *testing.T) {
	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, sampleReport(t, false), nil); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	html := buf.String()
	if strings.Contains(html, "latency-chart") {
		t.Error("chart should be omitted without histograms")
	}
	if strings.Contains(html, "Thresholds (") {
		t.Error("threshold section should be omitted without thresholds")
	}
}

func TestGenerateHTMLReport_Degraded(t *testing.T) {
	r := sampleReport(t, true)
	r.Servers = 2
	r.Degraded = true
	r.Failed = []metrics.FailedEndpoint{{URL: "ws://nchan-2/bench", Error: "stream closed"}}

	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, r, nil); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "DEGRADED") || !strings.Contains(html, "1 of 2 servers failed") {
		t.Error("degraded banner missing")
	}
	if !strings.Contains(html, "ws://nchan-2/bench") || !strings.Contains(html, "stream closed") {
		t.Error("failed server table missing")
	}
}

func TestGenerateHTMLReport_EscapesHTMLInData(t *testing.T) {
	r := sampleReport(t, false)
	r.Failed = []metrics.FailedEndpoint{{URL: "ws://x/<script>alert(1)</script>", Error: "<b>bad</b>"}}

	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, r, nil); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	html := buf.String()
	if strings.Contains(html, "<script>alert(1)</script>") || strings.Contains(html, "<b>bad</b>") {
		t.Error("report data should be HTML escaped")
	}
}

func TestGenerateHTMLReport_NilReport(t *testing.T) {
	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, nil, nil); err == nil {
		t.Error("GenerateHTMLReport(nil) should fail")
	}
}
