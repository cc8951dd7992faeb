package runner

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/torosent/benchan/internal/conn"
	"github.com/torosent/benchan/internal/protocol"
	"github.com/torosent/benchan/internal/tracing"
)

// Connection is one open endpoint connection as the driver sees it.
// Implementations deliver classified events until a terminal one, then
// close the channel.
type Connection interface {
	Endpoint() string
	Events() <-chan protocol.Event
	Send(ctx context.Context, cmd protocol.Command) error
	Terminate()
}

// Dialer opens a connection to one endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Connection, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Connection, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Connection, error) {
	return f(ctx, endpoint)
}

// WebSocketDialer opens connections with conn.Open. With propagate set, the
// trace context of the dial is injected into the handshake headers.
func WebSocketDialer(opt conn.Options, propagate bool) Dialer {
	return DialerFunc(func(ctx context.Context, endpoint string) (Connection, error) {
		o := opt
		if propagate {
			o.Headers = cloneHeader(opt.Headers)
			tracing.InjectHTTPHeaders(ctx, o.Headers)
		}
		c, err := conn.Open(ctx, endpoint, o)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	return h.Clone()
}

// Notice is a progress notification delivered from the driver's loop.
type Notice struct {
	Endpoint string           // empty for run-wide notices
	Event    protocol.Event   // the observed event, if any
	Command  protocol.Command // the broadcast command, if any
	Phase    GlobalPhase
	State    RunState
}

// Options configure the Driver.
type Options struct {
	Endpoints      []string                    // endpoint URLs; blanks and duplicates are dropped
	Dialer         Dialer                      // connection factory (defaults to WebSocketDialer)
	ConnectRate    int                         // dials per second (0 means unlimited)
	Retry          RetryPolicy                 // dial retries; the zero value dials once
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	RunID          string                      // generated when empty
	Logger         *slog.Logger
	Tracer         trace.Tracer
	OnNotice       func(Notice) // called synchronously from the driver loop
}

func (o *Options) normalize() {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("benchan")
	}
	if o.Dialer == nil {
		o.Dialer = WebSocketDialer(conn.Options{Logger: o.Logger}, false)
	}
	if o.ConnectRate < 0 {
		o.ConnectRate = 0
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
	if o.OnNotice == nil {
		o.OnNotice = func(Notice) {}
	}
}
