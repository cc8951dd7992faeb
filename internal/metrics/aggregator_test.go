package metrics

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/torosent/benchan/internal/histogram"
	"github.com/torosent/benchan/internal/protocol"
)

func hist(t *testing.T, micros ...int64) *histogram.Histogram {
	t.Helper()
	h := histogram.New()
	for _, v := range micros {
		if err := h.RecordMicros(v); err != nil {
			t.Fatal(err)
		}
	}
	return h
}

func payload(channels, subscribers int64, runTime float64, sent, received int64) *protocol.ResultPayload {
	return &protocol.ResultPayload{
		Channels:      channels,
		Subscribers:   subscribers,
		RunTimeSec:    runTime,
		MessageLength: 100,
		Messages:      protocol.MessageCounts{Sent: sent, Received: received},
	}
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAggregatorTwoEndpointScenario(t *testing.T) {
	a := NewAggregator()
	if err := a.Ingest("ws://a", payload(5, 10, 10, 100, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := a.Ingest("ws://b", payload(5, 10, 10, 100, 1000)); err != nil {
		t.Fatal(err)
	}

	r := a.Report(2)
	if r.Messages.Sent != 200 {
		t.Errorf("sent = %d, want 200", r.Messages.Sent)
	}
	if r.Channels != 10 {
		t.Errorf("channels = %d, want 10", r.Channels)
	}
	if !r.SendRate.Defined || !almostEqual(r.SendRate.Value, 20.0) {
		t.Errorf("send rate = %+v, want 20/sec", r.SendRate)
	}
	if !r.SendRatePerChannel.Defined || !almostEqual(r.SendRatePerChannel.Value, 120.0) {
		t.Errorf("send rate per channel = %+v, want 120/min", r.SendRatePerChannel)
	}
	if !almostEqual(r.ReceiveRatePerSubscriber.Value, 2000*60/(10*20.0)) {
		t.Errorf("receive rate per subscriber = %+v", r.ReceiveRatePerSubscriber)
	}
	if !almostEqual(r.SubscribersPerChannel.Value, 2) {
		t.Errorf("subscribers per channel = %+v", r.SubscribersPerChannel)
	}
	if len(r.RunTimes) != 1 || r.RunTimes[0] != 10 {
		t.Errorf("run times = %v, want [10]", r.RunTimes)
	}
	if len(r.MessageLengths) != 1 {
		t.Errorf("message lengths = %v, want one distinct value", r.MessageLengths)
	}
	if len(r.Contributors) != 2 {
		t.Errorf("contributors = %v", r.Contributors)
	}
}

func TestAggregatorCountersAreExactSums(t *testing.T) {
	inputs := []protocol.MessageCounts{
		{Sent: 1, SendFailed: 2, Received: 3, Unreceived: 4},
		{Sent: 1000, SendFailed: 0, Received: 999_999, Unreceived: 7},
		{Sent: 0, SendFailed: 5, Received: 0, Unreceived: 0},
	}
	a := NewAggregator()
	var want protocol.MessageCounts
	for i, m := range inputs {
		p := payload(int64(i+1), int64(i+2), 5, 0, 0)
		p.Messages = m
		want = want.Add(m)
		if err := a.Ingest(string(rune('a'+i)), p); err != nil {
			t.Fatal(err)
		}
	}
	r := a.Report(len(inputs))
	if r.Messages != want {
		t.Errorf("messages = %+v, want %+v", r.Messages, want)
	}
	if r.Channels != 6 || r.Subscribers != 9 {
		t.Errorf("channels=%d subscribers=%d, want 6 and 9", r.Channels, r.Subscribers)
	}
}

func TestAggregatorUsesMaxRunTime(t *testing.T) {
	a := NewAggregator()
	_ = a.Ingest("a", payload(1, 1, 10, 100, 100))
	_ = a.Ingest("b", payload(1, 1, 20, 100, 100))
	_ = a.Ingest("c", payload(1, 1, 10, 100, 100))

	r := a.Report(3)
	if r.MaxRunTimeSec != 20 {
		t.Errorf("max run time = %v, want 20", r.MaxRunTimeSec)
	}
	if len(r.RunTimes) != 2 || r.RunTimes[0] != 10 || r.RunTimes[1] != 20 {
		t.Errorf("run times = %v, want [10 20]", r.RunTimes)
	}
	if !almostEqual(r.SendRate.Value, 300.0/20) {
		t.Errorf("send rate = %v, want 15", r.SendRate.Value)
	}
}

func TestAggregatorZeroDenominatorsAreUndefined(t *testing.T) {
	a := NewAggregator()
	_ = a.Ingest("a", payload(0, 0, 10, 100, 0))

	r := a.Report(1)
	if r.SendRatePerChannel.Defined {
		t.Errorf("send rate per channel should be undefined, got %v", r.SendRatePerChannel.Value)
	}
	if r.ReceiveRatePerSubscriber.Defined {
		t.Errorf("receive rate per subscriber should be undefined, got %v", r.ReceiveRatePerSubscriber.Value)
	}
	if r.SubscribersPerChannel.Defined {
		t.Error("subscribers per channel should be undefined")
	}
	if !r.SendRate.Defined {
		t.Error("send rate should still be defined")
	}

	buf, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(buf)
	if strings.Contains(out, "Inf") || strings.Contains(out, "NaN") {
		t.Errorf("JSON contains Inf/NaN: %s", out)
	}
	if !strings.Contains(out, `"send_rate_per_channel_per_min":null`) {
		t.Errorf("undefined rate should encode as null: %s", out)
	}
}

func TestAggregatorZeroRunTime(t *testing.T) {
	a := NewAggregator()
	_ = a.Ingest("a", payload(1, 1, 0, 10, 10))
	r := a.Report(1)
	if r.SendRate.Defined || r.ReceiveRate.Defined {
		t.Error("rates over a zero run time must be undefined")
	}
}

func TestAggregatorEmptyReport(t *testing.T) {
	r := NewAggregator().Report(3)
	if r.Servers != 3 {
		t.Errorf("servers = %d", r.Servers)
	}
	if r.SendRate.Defined || r.PublishLatency != nil || r.DeliveryLatency != nil {
		t.Errorf("empty report should carry no rates or latencies: %+v", r)
	}
}

func TestAggregatorRejectsDuplicateEndpoint(t *testing.T) {
	a := NewAggregator()
	if err := a.Ingest("ws://a", payload(1, 1, 1, 1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := a.Ingest("ws://a", payload(1, 1, 1, 1, 1)); err == nil {
		t.Fatal("second ingest for the same endpoint should fail")
	}
	if r := a.Report(1); r.Messages.Sent != 1 {
		t.Errorf("duplicate must not be counted, sent = %d", r.Messages.Sent)
	}
	if err := a.Ingest("ws://b", nil); err == nil {
		t.Error("nil payload should fail")
	}
}

func TestAggregatorMergesHistogramsStructurally(t *testing.T) {
	pa := payload(1, 1, 1, 1, 1)
	pa.DeliveryLatency = hist(t, 1000, 1000, 1000, 1000)
	pb := payload(1, 1, 1, 1, 1)
	pb.DeliveryLatency = hist(t, 9000)
	pb.PublishLatency = hist(t, 500)

	ab := NewAggregator()
	_ = ab.Ingest("a", pa)
	_ = ab.Ingest("b", pb)
	ba := NewAggregator()
	_ = ba.Ingest("b", pb)
	_ = ba.Ingest("a", pa)

	r1, r2 := ab.Report(2), ba.Report(2)
	if r1.DeliveryLatency == nil || r1.PublishLatency == nil {
		t.Fatal("expected both latency summaries")
	}
	if *r1.DeliveryLatency != *r2.DeliveryLatency {
		t.Errorf("merge order changed result: %+v vs %+v", r1.DeliveryLatency, r2.DeliveryLatency)
	}
	if r1.DeliveryLatency.Count != 5 {
		t.Errorf("delivery count = %d, want 5", r1.DeliveryLatency.Count)
	}
	if math.Abs(r1.DeliveryLatency.P50Ms-1.0) > 0.01 {
		t.Errorf("merged p50 = %.3f, want ~1ms", r1.DeliveryLatency.P50Ms)
	}
	if r1.PublishLatency.Count != 1 {
		t.Errorf("publish count = %d, want 1", r1.PublishLatency.Count)
	}

	// Ingest must not mutate the payload's histograms.
	if pa.DeliveryLatency.Count() != 4 || pb.DeliveryLatency.Count() != 1 {
		t.Error("payload histograms were modified")
	}
}

func TestAggregatorOmitsAbsentHistograms(t *testing.T) {
	a := NewAggregator()
	p := payload(1, 1, 1, 1, 1)
	p.PublishLatency = hist(t, 100)
	_ = a.Ingest("a", p)

	r := a.Report(1)
	if r.PublishLatency == nil || r.PublishHistogram() == nil {
		t.Error("publishing latency should be present")
	}
	if r.DeliveryLatency != nil || r.DeliveryHistogram() != nil {
		t.Error("delivery latency should be absent")
	}
}

func TestRateFormat(t *testing.T) {
	if got := Undefined.Format("%.3f/sec"); got != "undefined" {
		t.Errorf("Undefined.Format = %q", got)
	}
	if got := (Rate{Value: 1.5, Defined: true}).Format("%.3f/sec"); got != "1.500/sec" {
		t.Errorf("Format = %q", got)
	}
}
