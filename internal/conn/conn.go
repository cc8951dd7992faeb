// Package conn manages the long-lived connection to one benchmark endpoint.
package conn

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/benchan/internal/clientmetrics"
	"github.com/torosent/benchan/internal/protocol"
	ws "github.com/torosent/benchan/internal/websocket"
)

const (
	defaultReadyTimeout = 30 * time.Second
	defaultIdleTimeout  = 15 * time.Minute
	eventBuffer         = 4
)

// Options configure a connection.
type Options struct {
	Headers          http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadyTimeout     time.Duration // how long to wait for READY after the handshake
	IdleTimeout      time.Duration // longest silence tolerated once READY arrived
	Logger           *slog.Logger
}

func (o *Options) normalize() {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = defaultReadyTimeout
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = defaultIdleTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// Conn is an open connection to one endpoint. Its event stream ends with a
// Failed event, a Results event received after the run command was sent, or
// silently after Terminate.
type Conn struct {
	endpoint string
	client   *ws.Client
	opt      Options
	events   chan protocol.Event
	started  atomic.Bool // set once the run command is on its way

	done          chan struct{}
	terminateOnce sync.Once
}

// Open dials endpoint and starts reading. A dial failure is returned as a
// *protocol.ConnectError; everything after that arrives on Events.
func Open(ctx context.Context, endpoint string, opt Options) (*Conn, error) {
	opt.normalize()

	headers := opt.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	if headers.Get("Accept") == "" {
		headers.Set("Accept", protocol.AcceptHeader)
	}

	client := ws.NewClient(ws.Config{
		URL:              endpoint,
		Headers:          headers,
		HandshakeTimeout: opt.HandshakeTimeout,
		WriteTimeout:     opt.WriteTimeout,
	})
	if err := client.Connect(ctx); err != nil {
		return nil, &protocol.ConnectError{Endpoint: endpoint, Err: err}
	}

	c := &Conn{
		endpoint: endpoint,
		client:   client,
		opt:      opt,
		events:   make(chan protocol.Event, eventBuffer),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Endpoint returns the URL this connection was opened for.
func (c *Conn) Endpoint() string { return c.endpoint }

// Events returns the inbound event stream.
func (c *Conn) Events() <-chan protocol.Event { return c.events }

// Send writes a control command.
func (c *Conn) Send(ctx context.Context, cmd protocol.Command) error {
	select {
	case <-c.done:
		return fmt.Errorf("send %s to %s: connection terminated", cmd, c.endpoint)
	default:
	}
	if cmd == protocol.CommandRun {
		c.started.Store(true)
	}
	if err := c.client.SendText(ctx, string(cmd)); err != nil {
		return fmt.Errorf("send %s to %s: %w", cmd, c.endpoint, err)
	}
	return nil
}

// Terminate closes the connection. It is safe to call more than once and
// from any goroutine.
func (c *Conn) Terminate() {
	c.terminateOnce.Do(func() {
		close(c.done)
		if err := c.client.Close(); err != nil {
			c.opt.Logger.Debug("close connection", "endpoint", c.endpoint, "error", err)
		}
	})
}

// Traffic returns the transport counters.
func (c *Conn) Traffic() clientmetrics.Snapshot { return c.client.Metrics() }

func (c *Conn) terminated() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) readLoop() {
	defer close(c.events)

	waiting, timeout := "READY", c.opt.ReadyTimeout
	for {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		msg, err := c.client.ReceiveMessage(ctx)
		cancel()

		if err != nil {
			if c.terminated() {
				return
			}
			if ws.IsTimeout(err) {
				err = &protocol.TimeoutError{Waiting: waiting, After: timeout}
			} else if ws.IsNormalClose(err) {
				err = fmt.Errorf("endpoint closed the connection before sending RESULTS: %w", err)
			}
			c.emit(protocol.Failed(err))
			c.Terminate()
			return
		}

		ev := protocol.Classify(string(msg.Data))
		switch ev.Kind {
		case protocol.EventReady:
			waiting, timeout = "RESULTS", c.opt.IdleTimeout
		case protocol.EventUnknown:
			c.opt.Logger.Debug("unrecognized message", "endpoint", c.endpoint, "bytes", len(msg.Data))
		}

		if !c.emit(ev) {
			return
		}
		// RESULTS before the run command is a stray frame, not the end of
		// the stream.
		if ev.Kind == protocol.EventFailed || (ev.Kind == protocol.EventResults && c.started.Load()) {
			c.Terminate()
			return
		}
	}
}

// emit delivers ev unless the connection was terminated first.
func (c *Conn) emit(ev protocol.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}
