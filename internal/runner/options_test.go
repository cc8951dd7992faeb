package runner

import (
	"testing"

	"golang.org/x/time/rate"
)

func TestOptionsNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    Options
		validate func(*testing.T, Options)
	}{
		{
			name:  "defaults",
			input: Options{},
			validate: func(t *testing.T, o Options) {
				if o.Logger == nil {
					t.Error("Logger should not be nil")
				}
				if o.Tracer == nil {
					t.Error("Tracer should not be nil")
				}
				if o.Dialer == nil {
					t.Error("Dialer should default to the websocket dialer")
				}
				if o.LimiterFactory == nil {
					t.Error("LimiterFactory should not be nil")
				}
				if o.OnNotice == nil {
					t.Error("OnNotice should not be nil")
				}
			},
		},
		{
			name:  "negative connect rate",
			input: Options{ConnectRate: -5},
			validate: func(t *testing.T, o Options) {
				if o.ConnectRate != 0 {
					t.Errorf("ConnectRate = %d, want 0", o.ConnectRate)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.input
			opts.normalize()
			tt.validate(t, opts)
		})
	}
}

func TestLimiterFactory(t *testing.T) {
	opts := Options{}
	opts.normalize()

	limiter := opts.LimiterFactory(0)
	if limiter.Limit() != rate.Inf {
		t.Errorf("Limit(0) = %v, want Inf", limiter.Limit())
	}

	limiter = opts.LimiterFactory(20)
	if limiter.Limit() != rate.Limit(20) {
		t.Errorf("Limit(20) = %v, want 20", limiter.Limit())
	}
	if limiter.Burst() != 1 {
		t.Errorf("Burst(20) = %d, want 1 so dials are spread out", limiter.Burst())
	}
}
