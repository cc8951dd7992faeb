package metrics

import (
	"fmt"
	"slices"
	"sync"

	"github.com/torosent/benchan/internal/histogram"
	"github.com/torosent/benchan/internal/protocol"
)

// Aggregator folds per-endpoint result payloads into one report.
type Aggregator struct {
	mu sync.Mutex

	seen           map[string]bool
	contributors   []string
	channels       int64
	subscribers    int64
	messages       protocol.MessageCounts
	runTimes       []float64
	messageLengths []int64
	publish        *histogram.Histogram
	delivery       *histogram.Histogram
	dropped        int64
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[string]bool)}
}

// Ingest adds one endpoint's payload. Each endpoint may contribute once.
func (a *Aggregator) Ingest(endpoint string, p *protocol.ResultPayload) error {
	if p == nil {
		return fmt.Errorf("ingest %s: nil payload", endpoint)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seen[endpoint] {
		return fmt.Errorf("ingest %s: results already recorded", endpoint)
	}
	a.seen[endpoint] = true
	a.contributors = append(a.contributors, endpoint)

	a.channels += p.Channels
	a.subscribers += p.Subscribers
	a.messages = a.messages.Add(p.Messages)

	if !slices.Contains(a.runTimes, p.RunTimeSec) {
		a.runTimes = append(a.runTimes, p.RunTimeSec)
	}
	if p.MessageLength > 0 && !slices.Contains(a.messageLengths, p.MessageLength) {
		a.messageLengths = append(a.messageLengths, p.MessageLength)
	}

	if p.PublishLatency != nil {
		if a.publish == nil {
			a.publish = histogram.New()
		}
		a.dropped += a.publish.Merge(p.PublishLatency)
	}
	if p.DeliveryLatency != nil {
		if a.delivery == nil {
			a.delivery = histogram.New()
		}
		a.dropped += a.delivery.Merge(p.DeliveryLatency)
	}
	return nil
}

// Report computes the aggregate over everything ingested so far. servers is
// the number of endpoints that took part in the run.
func (a *Aggregator) Report(servers int) *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := &Report{
		Servers:           servers,
		Contributors:      slices.Clone(a.contributors),
		RunTimes:          slices.Clone(a.runTimes),
		MessageLengths:    slices.Clone(a.messageLengths),
		Channels:          a.channels,
		Subscribers:       a.subscribers,
		Messages:          a.messages,
		DroppedSamples:    a.dropped,
		MaxRunTimeSec:     maxRunTime(a.runTimes),
		publishHistogram:  cloneOrNil(a.publish),
		deliveryHistogram: cloneOrNil(a.delivery),
	}

	runTime := r.MaxRunTimeSec
	sent := float64(a.messages.Sent)
	received := float64(a.messages.Received)

	r.SubscribersPerChannel = ratio(float64(a.subscribers), float64(a.channels))
	r.SendRate = ratio(sent, runTime)
	r.ReceiveRate = ratio(received, runTime)
	r.SendRatePerChannel = ratio(sent*60, runTime*float64(a.channels))
	r.ReceiveRatePerSubscriber = ratio(received*60, runTime*float64(a.subscribers))

	if r.publishHistogram != nil {
		s := r.publishHistogram.Summary()
		r.PublishLatency = &s
	}
	if r.deliveryHistogram != nil {
		s := r.deliveryHistogram.Summary()
		r.DeliveryLatency = &s
	}
	return r
}

func maxRunTime(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return slices.Max(values)
}

func cloneOrNil(h *histogram.Histogram) *histogram.Histogram {
	if h == nil {
		return nil
	}
	return h.Clone()
}
