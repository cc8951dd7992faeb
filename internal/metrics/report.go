package metrics

import (
	"github.com/torosent/benchan/internal/histogram"
	"github.com/torosent/benchan/internal/protocol"
)

// FailedEndpoint names an endpoint that did not deliver results.
type FailedEndpoint struct {
	URL   string `json:"url" yaml:"url"`
	Error string `json:"error" yaml:"error"`
}

// Report is the aggregate view over all result payloads of one run.
type Report struct {
	RunID   string `json:"run_id" yaml:"run_id"`
	Servers int    `json:"servers" yaml:"servers"`

	// Degraded is set when some endpoint failed after the benchmark started;
	// Partial when the run was interrupted before every endpoint finished.
	Degraded bool             `json:"degraded" yaml:"degraded"`
	Partial  bool             `json:"partial" yaml:"partial"`
	Failed   []FailedEndpoint `json:"failed_endpoints,omitempty" yaml:"failed_endpoints,omitempty"`

	Contributors   []string  `json:"contributors" yaml:"contributors"`
	RunTimes       []float64 `json:"run_times_sec" yaml:"run_times_sec"`
	MaxRunTimeSec  float64   `json:"max_run_time_sec" yaml:"max_run_time_sec"`
	MessageLengths []int64   `json:"message_lengths" yaml:"message_lengths"`

	Channels              int64                  `json:"channels" yaml:"channels"`
	Subscribers           int64                  `json:"subscribers" yaml:"subscribers"`
	SubscribersPerChannel Rate                   `json:"subscribers_per_channel" yaml:"subscribers_per_channel"`
	Messages              protocol.MessageCounts `json:"messages" yaml:"messages"`

	SendRate                 Rate `json:"send_rate_per_sec" yaml:"send_rate_per_sec"`
	ReceiveRate              Rate `json:"receive_rate_per_sec" yaml:"receive_rate_per_sec"`
	SendRatePerChannel       Rate `json:"send_rate_per_channel_per_min" yaml:"send_rate_per_channel_per_min"`
	ReceiveRatePerSubscriber Rate `json:"receive_rate_per_subscriber_per_min" yaml:"receive_rate_per_subscriber_per_min"`

	PublishLatency  *histogram.Summary `json:"publishing_latency,omitempty" yaml:"publishing_latency,omitempty"`
	DeliveryLatency *histogram.Summary `json:"delivery_latency,omitempty" yaml:"delivery_latency,omitempty"`
	DroppedSamples  int64              `json:"dropped_samples,omitempty" yaml:"dropped_samples,omitempty"`

	publishHistogram  *histogram.Histogram
	deliveryHistogram *histogram.Histogram
}

// PublishHistogram returns the merged publishing latency histogram, or nil.
func (r *Report) PublishHistogram() *histogram.Histogram { return r.publishHistogram }

// DeliveryHistogram returns the merged delivery latency histogram, or nil.
func (r *Report) DeliveryHistogram() *histogram.Histogram { return r.deliveryHistogram }
