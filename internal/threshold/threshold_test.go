package threshold

import (
	"testing"

	"github.com/torosent/benchan/internal/histogram"
	"github.com/torosent/benchan/internal/metrics"
	"github.com/torosent/benchan/internal/protocol"
)

func sampleReport() *metrics.Report {
	return &metrics.Report{
		Servers:  2,
		Failed:   []metrics.FailedEndpoint{{URL: "ws://b/bench", Error: "closed"}},
		Messages: protocol.MessageCounts{Sent: 1000, SendFailed: 3, Received: 9990, Unreceived: 10},
		PublishLatency: &histogram.Summary{
			MinMs: 0.5, MeanMs: 2.25, P50Ms: 2, P90Ms: 4, P99Ms: 8.5, MaxMs: 12, StdDevMs: 1.5, Count: 1000,
		},
		DeliveryLatency: &histogram.Summary{
			MinMs: 1, MeanMs: 10.75, P50Ms: 9, P90Ms: 20, P99Ms: 45.5, MaxMs: 80, StdDevMs: 6, Count: 9990,
		},
		SendRate:                 metrics.Rate{Value: 100, Defined: true},
		ReceiveRate:              metrics.Rate{Value: 999, Defined: true},
		SendRatePerChannel:       metrics.Rate{Value: 60, Defined: true},
		ReceiveRatePerSubscriber: metrics.Undefined,
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "delivery p99",
			input: "delivery_latency:p99 < 50",
			want: Threshold{
				Metric:    "delivery_latency",
				Aggregate: "p99",
				Operator:  "<",
				Value:     50,
				Raw:       "delivery_latency:p99 < 50",
			},
		},
		{
			name:  "publishing stddev with <=",
			input: "publishing_latency:stddev <= 2.5",
			want: Threshold{
				Metric:    "publishing_latency",
				Aggregate: "stddev",
				Operator:  "<=",
				Value:     2.5,
				Raw:       "publishing_latency:stddev <= 2.5",
			},
		},
		{
			name:  "message counter",
			input: "messages_unreceived:count==0",
			want: Threshold{
				Metric:    "messages_unreceived",
				Aggregate: "count",
				Operator:  "==",
				Value:     0,
				Raw:       "messages_unreceived:count==0",
			},
		},
		{
			name:  "receive rate",
			input: "  receive_rate:rate > 100  ",
			want: Threshold{
				Metric:    "receive_rate",
				Aggregate: "rate",
				Operator:  ">",
				Value:     100,
				Raw:       "receive_rate:rate > 100",
			},
		},
		{name: "empty string", input: "", wantError: true},
		{name: "missing operator", input: "delivery_latency:p99 50", wantError: true},
		{name: "unknown metric", input: "http_req_duration:p95 < 500", wantError: true},
		{name: "unsupported latency aggregate", input: "delivery_latency:p95 < 50", wantError: true},
		{name: "rate aggregate on counter", input: "messages_sent:rate > 1", wantError: true},
		{name: "count aggregate on rate", input: "send_rate:count > 1", wantError: true},
		{name: "invalid operator", input: "delivery_latency:p99 << 50", wantError: true},
		{name: "not a number", input: "delivery_latency:p99 < abc", wantError: true},
		{name: "malformed number", input: "delivery_latency:p99 < 1.2.3", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("Parse() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		wantCount int
		wantError bool
	}{
		{
			name: "multiple valid thresholds",
			input: []string{
				"delivery_latency:p99 < 50",
				"failed_endpoints:count == 0",
				"send_rate_per_channel:rate >= 30",
			},
			wantCount: 3,
		},
		{
			name:      "empty slice",
			input:     []string{},
			wantCount: 0,
		},
		{
			name: "one valid, one invalid",
			input: []string{
				"delivery_latency:p99 < 50",
				"invalid threshold",
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMultiple(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ParseMultiple() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && len(got) != tt.wantCount {
				t.Errorf("ParseMultiple() returned %d thresholds, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestEvaluator(t *testing.T) {
	report := sampleReport()

	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name: "all thresholds pass",
			thresholds: []string{
				"delivery_latency:p99 < 50",
				"publishing_latency:max <= 12",
				"receive_rate:rate > 500",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name: "some thresholds fail",
			thresholds: []string{
				"delivery_latency:p99 < 40",
				"messages_unreceived:count == 0",
				"failed_endpoints:count == 0",
				"messages_sent:count >= 1000",
			},
			wantPass: []bool{false, false, false, true},
		},
		{
			name: "undefined rate fails",
			thresholds: []string{
				"receive_rate_per_subscriber:rate > 0",
			},
			wantPass: []bool{false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}

			results := NewEvaluator(thresholds).Evaluate(report)
			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}

			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: got pass=%v, want %v (actual=%.2f)",
						i, result.Threshold.Raw, result.Pass, tt.wantPass[i], result.Actual)
				}
				if result.Expr != result.Threshold.Raw {
					t.Errorf("Expr = %q, want %q", result.Expr, result.Threshold.Raw)
				}
			}
			wantAll := true
			for _, p := range tt.wantPass {
				wantAll = wantAll && p
			}
			if AllPassed(results) != wantAll {
				t.Errorf("AllPassed() = %v, want %v", AllPassed(results), wantAll)
			}
		})
	}
}

func TestEvaluatorWithoutThresholds(t *testing.T) {
	if results := NewEvaluator(nil).Evaluate(sampleReport()); results != nil {
		t.Errorf("Evaluate() = %v, want nil", results)
	}
	if !AllPassed(nil) {
		t.Error("AllPassed(nil) = false, want true")
	}
}

func TestLatencyWithoutSamples(t *testing.T) {
	report := &metrics.Report{}

	if _, err := extractMetricValue(Threshold{Metric: "delivery_latency", Aggregate: "p99"}, report); err == nil {
		t.Error("p99 without samples should be an error")
	}
	got, err := extractMetricValue(Threshold{Metric: "delivery_latency", Aggregate: "count"}, report)
	if err != nil || got != 0 {
		t.Errorf("count without samples = %v, %v; want 0, nil", got, err)
	}
	if _, err := extractMetricValue(Threshold{Metric: "send_rate", Aggregate: "rate"}, nil); err == nil {
		t.Error("nil report should be an error")
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than false", 100, "<", 50, false},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal true", 50, "<=", 100, true},
		{"less than or equal equal", 100, "<=", 100, true},
		{"less than or equal false", 150, "<=", 100, false},
		{"greater than true", 150, ">", 100, true},
		{"greater than false", 50, ">", 100, false},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"greater than or equal false", 50, ">=", 100, false},
		{"equal true", 100, "==", 100, true},
		{"equal false", 100, "==", 101, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
		{"unknown operator", 1, "!=", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.actual, tt.operator, tt.expected)
			if got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}

func TestExtractMetricValue(t *testing.T) {
	report := sampleReport()

	tests := []struct {
		name      string
		threshold Threshold
		want      float64
		wantError bool
	}{
		{name: "delivery p50", threshold: Threshold{Metric: "delivery_latency", Aggregate: "p50"}, want: 9},
		{name: "delivery p90", threshold: Threshold{Metric: "delivery_latency", Aggregate: "p90"}, want: 20},
		{name: "delivery avg", threshold: Threshold{Metric: "delivery_latency", Aggregate: "avg"}, want: 10.75},
		{name: "delivery count", threshold: Threshold{Metric: "delivery_latency", Aggregate: "count"}, want: 9990},
		{name: "publishing min", threshold: Threshold{Metric: "publishing_latency", Aggregate: "min"}, want: 0.5},
		{name: "publishing mean", threshold: Threshold{Metric: "publishing_latency", Aggregate: "mean"}, want: 2.25},
		{name: "publishing stddev", threshold: Threshold{Metric: "publishing_latency", Aggregate: "stddev"}, want: 1.5},
		{name: "send failed", threshold: Threshold{Metric: "messages_send_failed", Aggregate: "count"}, want: 3},
		{name: "received", threshold: Threshold{Metric: "messages_received", Aggregate: "count"}, want: 9990},
		{name: "failed endpoints", threshold: Threshold{Metric: "failed_endpoints", Aggregate: "count"}, want: 1},
		{name: "send rate", threshold: Threshold{Metric: "send_rate", Aggregate: "rate"}, want: 100},
		{name: "send rate per channel", threshold: Threshold{Metric: "send_rate_per_channel", Aggregate: "rate"}, want: 60},
		{name: "undefined rate", threshold: Threshold{Metric: "receive_rate_per_subscriber", Aggregate: "rate"}, wantError: true},
		{name: "unsupported metric", threshold: Threshold{Metric: "invalid_metric", Aggregate: "p95"}, wantError: true},
		{name: "unsupported aggregate", threshold: Threshold{Metric: "delivery_latency", Aggregate: "p95"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractMetricValue(tt.threshold, report)
			if (err != nil) != tt.wantError {
				t.Errorf("extractMetricValue() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("extractMetricValue() = %v, want %v", got, tt.want)
			}
		})
	}
}
