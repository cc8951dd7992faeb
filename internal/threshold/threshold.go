package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/torosent/benchan/internal/histogram"
	"github.com/torosent/benchan/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "delivery_latency", "messages_unreceived"
	Aggregate string  // e.g., "p99", "avg", "max", "count", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-" yaml:"-"`
	Expr      string    `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

// Evaluator evaluates thresholds against an aggregate report.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against report.
func (e *Evaluator) Evaluate(report *metrics.Report) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, report))
	}
	return results
}

// AllPassed reports whether every result passed. An empty set passes.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, report *metrics.Report) Result {
	actual, err := extractMetricValue(t, report)
	if err != nil {
		return Result{
			Threshold: t,
			Expr:      t.Raw,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Expr:      t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.3f %s %.3f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

var (
	latencyMetrics   = []string{"publishing_latency", "delivery_latency"}
	countMetrics     = []string{"messages_sent", "messages_received", "messages_send_failed", "messages_unreceived", "failed_endpoints"}
	rateMetrics      = []string{"send_rate", "receive_rate", "send_rate_per_channel", "receive_rate_per_subscriber"}
	latencyAggregate = []string{"min", "avg", "mean", "p50", "p90", "p99", "max", "stddev", "count"}
	operators        = []string{"<", "<=", ">", ">=", "=="}
)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "delivery_latency:p99 < 50"          (latency in ms; min, avg, p50, p90, p99, max, stddev, count)
// - "publishing_latency:max <= 200"
// - "messages_unreceived:count == 0"     (message counters)
// - "failed_endpoints:count == 0"
// - "receive_rate:rate > 1000"           (messages/sec; per-channel and per-subscriber rates are per minute)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'delivery_latency:p99 < 50')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	switch {
	case slices.Contains(latencyMetrics, metric):
		if !slices.Contains(latencyAggregate, aggregate) {
			return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(latencyAggregate, ", "))
		}
	case slices.Contains(countMetrics, metric):
		if aggregate != "count" {
			return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (use 'count')", aggregate, metric)
		}
	case slices.Contains(rateMetrics, metric):
		if aggregate != "rate" {
			return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (use 'rate')", aggregate, metric)
		}
	default:
		return Threshold{}, fmt.Errorf("unsupported metric: %q", metric)
	}

	if !slices.Contains(operators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

func extractMetricValue(t Threshold, r *metrics.Report) (float64, error) {
	if r == nil {
		return 0, fmt.Errorf("no report")
	}
	switch t.Metric {
	case "publishing_latency":
		return extractLatencyMetric(t.Metric, t.Aggregate, r.PublishLatency)
	case "delivery_latency":
		return extractLatencyMetric(t.Metric, t.Aggregate, r.DeliveryLatency)
	case "messages_sent":
		return float64(r.Messages.Sent), nil
	case "messages_received":
		return float64(r.Messages.Received), nil
	case "messages_send_failed":
		return float64(r.Messages.SendFailed), nil
	case "messages_unreceived":
		return float64(r.Messages.Unreceived), nil
	case "failed_endpoints":
		return float64(len(r.Failed)), nil
	case "send_rate":
		return extractRate(t.Metric, r.SendRate)
	case "receive_rate":
		return extractRate(t.Metric, r.ReceiveRate)
	case "send_rate_per_channel":
		return extractRate(t.Metric, r.SendRatePerChannel)
	case "receive_rate_per_subscriber":
		return extractRate(t.Metric, r.ReceiveRatePerSubscriber)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(metric, aggregate string, s *histogram.Summary) (float64, error) {
	if aggregate == "count" {
		if s == nil {
			return 0, nil
		}
		return float64(s.Count), nil
	}
	if s == nil || s.Count == 0 {
		return 0, fmt.Errorf("no %s samples", metric)
	}
	switch aggregate {
	case "min":
		return s.MinMs, nil
	case "avg", "mean":
		return s.MeanMs, nil
	case "p50":
		return s.P50Ms, nil
	case "p90":
		return s.P90Ms, nil
	case "p99":
		return s.P99Ms, nil
	case "max":
		return s.MaxMs, nil
	case "stddev":
		return s.StdDevMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s", aggregate, metric)
	}
}

func extractRate(metric string, r metrics.Rate) (float64, error) {
	if !r.Defined {
		return 0, fmt.Errorf("%s is undefined", metric)
	}
	return r.Value, nil
}

func compareValues(actual float64, operator string, expected float64) bool {
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
