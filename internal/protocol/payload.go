package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	"github.com/torosent/benchan/internal/histogram"
)

// MessageCounts are the message counters an endpoint reports.
type MessageCounts struct {
	Sent       int64 `json:"sent" yaml:"sent"`
	SendFailed int64 `json:"send_failed" yaml:"send_failed"`
	Received   int64 `json:"received" yaml:"received"`
	Unreceived int64 `json:"unreceived" yaml:"unreceived"`
}

// Add returns the element-wise sum of m and o.
func (m MessageCounts) Add(o MessageCounts) MessageCounts {
	return MessageCounts{
		Sent:       m.Sent + o.Sent,
		SendFailed: m.SendFailed + o.SendFailed,
		Received:   m.Received + o.Received,
		Unreceived: m.Unreceived + o.Unreceived,
	}
}

// ResultPayload is the body of a RESULTS frame. Treat it as read-only.
type ResultPayload struct {
	Channels        int64
	Subscribers     int64
	RunTimeSec      float64
	MessageLength   int64 // 0 when the endpoint did not report it
	Messages        MessageCounts
	PublishLatency  *histogram.Histogram // nil when absent
	DeliveryLatency *histogram.Histogram // nil when absent
}

var errNotObject = errors.New("payload is not a JSON object")

// ParsePayload parses and validates a RESULTS body.
func ParsePayload(body []byte) (*ResultPayload, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, errNotObject
	}

	p := &ResultPayload{}
	var err error
	if p.Channels, err = requireCount(doc, "channels"); err != nil {
		return nil, err
	}
	if p.Subscribers, err = requireCount(doc, "subscribers"); err != nil {
		return nil, err
	}
	rt := doc.Get("run_time_sec")
	if rt.Type != gjson.Number {
		return nil, fmt.Errorf("run_time_sec: expected number")
	}
	if rt.Float() < 0 {
		return nil, fmt.Errorf("run_time_sec: negative value %v", rt.Float())
	}
	p.RunTimeSec = rt.Float()

	if ml := doc.Get("message_length"); ml.Exists() && ml.Type != gjson.Null {
		if ml.Type != gjson.Number {
			return nil, fmt.Errorf("message_length: expected number")
		}
		p.MessageLength = ml.Int()
	}

	msgs := doc.Get("messages")
	if !msgs.IsObject() {
		return nil, fmt.Errorf("messages: expected object")
	}
	if p.Messages.Sent, err = requireCount(msgs, "sent"); err != nil {
		return nil, fmt.Errorf("messages.%w", err)
	}
	if p.Messages.SendFailed, err = requireCount(msgs, "send_failed"); err != nil {
		return nil, fmt.Errorf("messages.%w", err)
	}
	if p.Messages.Received, err = requireCount(msgs, "received"); err != nil {
		return nil, fmt.Errorf("messages.%w", err)
	}
	if p.Messages.Unreceived, err = requireCount(msgs, "unreceived"); err != nil {
		return nil, fmt.Errorf("messages.%w", err)
	}

	if p.PublishLatency, err = optionalHistogram(doc, "message_publishing_histogram"); err != nil {
		return nil, err
	}
	if p.DeliveryLatency, err = optionalHistogram(doc, "message_delivery_histogram"); err != nil {
		return nil, err
	}
	return p, nil
}

func requireCount(doc gjson.Result, key string) (int64, error) {
	v := doc.Get(key)
	if !v.Exists() {
		return 0, fmt.Errorf("%s: missing", key)
	}
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("%s: expected number, got %s", key, v.Type)
	}
	if v.Num != math.Trunc(v.Num) {
		return 0, fmt.Errorf("%s: expected integer, got %s", key, v.Raw)
	}
	if v.Num < 0 {
		return 0, fmt.Errorf("%s: negative value %s", key, v.Raw)
	}
	if v.Num >= math.MaxInt64 {
		return 0, fmt.Errorf("%s: value %s out of range", key, v.Raw)
	}
	return v.Int(), nil
}

func optionalHistogram(doc gjson.Result, key string) (*histogram.Histogram, error) {
	v := doc.Get(key)
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	if v.Type != gjson.String {
		return nil, fmt.Errorf("%s: expected string", key)
	}
	h, err := histogram.Decode(v.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return h, nil
}
