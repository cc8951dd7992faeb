// Package histogram wraps HdrHistogram for latency distributions reported by
// benchmark endpoints.
//
// Endpoints record latencies in microseconds and ship them as the compressed,
// base64 encoded HdrHistogram V2 format. Every value exposed by this package is
// in milliseconds.
package histogram

import (
	"fmt"
	"strings"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// unitMultiplier converts recorded microseconds into milliseconds.
	unitMultiplier = 0.001

	lowestTrackable  = 1
	highestTrackable = 3_600_000_000 // one hour in microseconds
	significantFigs  = 3
)

// Histogram is a latency distribution.
type Histogram struct {
	h *hdrhistogram.Histogram
}

// Summary holds the statistics printed for a latency distribution.
type Summary struct {
	MinMs    float64 `json:"min_ms" yaml:"min_ms"`
	MeanMs   float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms    float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms    float64 `json:"p90_ms" yaml:"p90_ms"`
	P99Ms    float64 `json:"p99_ms" yaml:"p99_ms"`
	MaxMs    float64 `json:"max_ms" yaml:"max_ms"`
	StdDevMs float64 `json:"stddev_ms" yaml:"stddev_ms"`
	Count    int64   `json:"count" yaml:"count"`
}

// New returns an empty histogram tracking 1µs to one hour at three
// significant figures. Merges into it are order independent.
func New() *Histogram {
	return &Histogram{h: hdrhistogram.New(lowestTrackable, highestTrackable, significantFigs)}
}

// Decode parses a base64 compressed HdrHistogram.
func Decode(encoded string) (*Histogram, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("empty histogram")
	}
	h, err := hdrhistogram.Decode([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode histogram: %w", err)
	}
	return &Histogram{h: h}, nil
}

// Encode serializes the histogram to the base64 compressed V2 format.
func (h *Histogram) Encode() (string, error) {
	buf, err := h.h.Encode(hdrhistogram.V2CompressedEncodingCookieBase)
	if err != nil {
		return "", fmt.Errorf("encode histogram: %w", err)
	}
	return string(buf), nil
}

// RecordMicros records one latency sample in microseconds.
func (h *Histogram) RecordMicros(us int64) error {
	return h.h.RecordValue(us)
}

// Merge folds other into h and returns the number of samples that fell
// outside h's trackable range.
func (h *Histogram) Merge(other *Histogram) int64 {
	if other == nil {
		return 0
	}
	return h.h.Merge(other.h)
}

// Clone returns an independent copy.
func (h *Histogram) Clone() *Histogram {
	return &Histogram{h: hdrhistogram.Import(h.h.Export())}
}

// Count returns the number of recorded samples.
func (h *Histogram) Count() int64 { return h.h.TotalCount() }

// Min returns the smallest recorded latency in milliseconds.
func (h *Histogram) Min() float64 { return float64(h.h.Min()) * unitMultiplier }

// Max returns the largest recorded latency in milliseconds.
func (h *Histogram) Max() float64 { return float64(h.h.Max()) * unitMultiplier }

// Mean returns the mean latency in milliseconds.
func (h *Histogram) Mean() float64 { return h.h.Mean() * unitMultiplier }

// StdDev returns the standard deviation in milliseconds.
func (h *Histogram) StdDev() float64 { return h.h.StdDev() * unitMultiplier }

// Percentile returns the latency at percentile p (0-100) in milliseconds.
func (h *Histogram) Percentile(p float64) float64 {
	return float64(h.h.ValueAtQuantile(p)) * unitMultiplier
}

// Summary computes the printed statistics.
func (h *Histogram) Summary() Summary {
	return Summary{
		MinMs:    h.Min(),
		MeanMs:   h.Mean(),
		P50Ms:    h.Percentile(50),
		P90Ms:    h.Percentile(90),
		P99Ms:    h.Percentile(99),
		MaxMs:    h.Max(),
		StdDevMs: h.StdDev(),
		Count:    h.Count(),
	}
}
