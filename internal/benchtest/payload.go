// Package benchtest provides an in-process benchmark endpoint that speaks the
// READY/RUNNING/RESULTS protocol, for tests and local experiments.
package benchtest

import (
	"encoding/json"
	"fmt"

	"github.com/torosent/benchan/internal/histogram"
)

// Payload describes the RESULTS body a fake endpoint reports.
type Payload struct {
	Channels       int64
	Subscribers    int64
	RunTimeSec     float64
	MessageLength  int64
	Sent           int64
	SendFailed     int64
	Received       int64
	Unreceived     int64
	PublishMicros  []int64 // omitted from the payload when empty
	DeliveryMicros []int64 // omitted from the payload when empty
}

type wirePayload struct {
	Channels      int64   `json:"channels"`
	Subscribers   int64   `json:"subscribers"`
	RunTimeSec    float64 `json:"run_time_sec"`
	MessageLength int64   `json:"message_length"`
	Messages      struct {
		Sent       int64 `json:"sent"`
		SendFailed int64 `json:"send_failed"`
		Received   int64 `json:"received"`
		Unreceived int64 `json:"unreceived"`
	} `json:"messages"`
	Publishing string `json:"message_publishing_histogram,omitempty"`
	Delivery   string `json:"message_delivery_histogram,omitempty"`
}

// JSON renders the payload the way a real endpoint would.
func (p Payload) JSON() (string, error) {
	w := wirePayload{
		Channels:      p.Channels,
		Subscribers:   p.Subscribers,
		RunTimeSec:    p.RunTimeSec,
		MessageLength: p.MessageLength,
	}
	w.Messages.Sent = p.Sent
	w.Messages.SendFailed = p.SendFailed
	w.Messages.Received = p.Received
	w.Messages.Unreceived = p.Unreceived

	var err error
	if w.Publishing, err = encodeMicros(p.PublishMicros); err != nil {
		return "", fmt.Errorf("publishing histogram: %w", err)
	}
	if w.Delivery, err = encodeMicros(p.DeliveryMicros); err != nil {
		return "", fmt.Errorf("delivery histogram: %w", err)
	}

	buf, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// MustJSON is JSON for fixed test data.
func (p Payload) MustJSON() string {
	s, err := p.JSON()
	if err != nil {
		panic(err)
	}
	return s
}

func encodeMicros(values []int64) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	h := histogram.New()
	for _, v := range values {
		if err := h.RecordMicros(v); err != nil {
			return "", err
		}
	}
	return h.Encode()
}
