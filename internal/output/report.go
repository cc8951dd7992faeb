package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/torosent/benchan/internal/histogram"
	"github.com/torosent/benchan/internal/metrics"
	"github.com/torosent/benchan/internal/threshold"
)

// Document is the machine readable form of a finished run.
type Document struct {
	Report     *metrics.Report    `json:"report" yaml:"report"`
	Thresholds []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Passed     bool               `json:"passed" yaml:"passed"`
}

// NewDocument bundles a report with its threshold results.
func NewDocument(r *metrics.Report, results []threshold.Result) Document {
	return Document{Report: r, Thresholds: results, Passed: threshold.AllPassed(results)}
}

// PrintReport outputs the human-readable summary report.
func PrintReport(w io.Writer, r *metrics.Report) {
	if r == nil {
		return
	}
	if r.Partial {
		fmt.Fprintln(w, "partial results (benchmark interrupted):")
	}
	fmt.Fprintf(w, "Nchan servers:                 %d\n", r.Servers)
	fmt.Fprintf(w, "runtime:                       %s\n", joinFloats(r.RunTimes))
	fmt.Fprintf(w, "channels:                      %d\n", r.Channels)
	fmt.Fprintf(w, "subscribers:                   %d\n", r.Subscribers)
	fmt.Fprintf(w, "subscribers per channel:       %s\n", r.SubscribersPerChannel.Format("%.1f"))
	fmt.Fprintln(w, "messages:")
	fmt.Fprintf(w, "  length:                      %s\n", joinInts(r.MessageLengths))
	fmt.Fprintf(w, "  sent:                        %d\n", r.Messages.Sent)
	fmt.Fprintf(w, "  send_failed:                 %d\n", r.Messages.SendFailed)
	fmt.Fprintf(w, "  received:                    %d\n", r.Messages.Received)
	fmt.Fprintf(w, "  unreceived:                  %d\n", r.Messages.Unreceived)
	fmt.Fprintf(w, "  send rate:                   %s\n", withUnit(r.SendRate, "/sec"))
	fmt.Fprintf(w, "  receive rate:                %s\n", withUnit(r.ReceiveRate, "/sec"))
	fmt.Fprintf(w, "  send rate per channel:       %s\n", withUnit(r.SendRatePerChannel, "/min"))
	fmt.Fprintf(w, "  receive rate per subscriber: %s\n", withUnit(r.ReceiveRatePerSubscriber, "/min"))

	if r.PublishLatency != nil {
		writeLatency(w, "message publishing latency", r.PublishLatency)
	}
	if r.DeliveryLatency != nil {
		writeLatency(w, "message delivery latency", r.DeliveryLatency)
	}
	if r.DroppedSamples > 0 {
		fmt.Fprintf(w, "dropped latency samples:       %d\n", r.DroppedSamples)
	}

	if len(r.Failed) > 0 {
		fmt.Fprintf(w, "failed endpoints (%d of %d):\n", len(r.Failed), r.Servers)
		for _, f := range r.Failed {
			fmt.Fprintf(w, "  %s: %s\n", f.URL, f.Error)
		}
	}
}

// PrintThresholdResults lists threshold outcomes under a header.
func PrintThresholdResults(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	passed := 0
	for _, r := range results {
		if r.Pass {
			passed++
		}
	}
	fmt.Fprintf(w, "\nthresholds (%d/%d passed):\n", passed, len(results))
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func writeLatency(w io.Writer, name string, s *histogram.Summary) {
	fmt.Fprintln(w, name)
	fmt.Fprintf(w, "  min:                         %.3fms\n", s.MinMs)
	fmt.Fprintf(w, "  avg:                         %.3fms\n", s.MeanMs)
	fmt.Fprintf(w, "  99%%ile:                      %.3fms\n", s.P99Ms)
	fmt.Fprintf(w, "  max:                         %.3fms\n", s.MaxMs)
	fmt.Fprintf(w, "  stddev:                      %.3fms\n", s.StdDevMs)
	fmt.Fprintf(w, "  samples:                     %d\n", s.Count)
}

func withUnit(r metrics.Rate, unit string) string {
	if !r.Defined {
		return r.Format("")
	}
	return r.Format("%.3f") + unit
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func joinInts(vals []int64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}
