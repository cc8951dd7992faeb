package runner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/benchan/internal/clientmetrics"
	"github.com/torosent/benchan/internal/metrics"
	"github.com/torosent/benchan/internal/protocol"
	"github.com/torosent/benchan/internal/tracing"
)

// Snapshot is a point-in-time view of a run for progress displays.
type Snapshot struct {
	RunID     string
	Started   time.Time
	Phase     GlobalPhase
	State     RunState
	Endpoints []EndpointStatus
}

// Driver runs one benchmark across a set of endpoints.
type Driver struct {
	opt       Options
	endpoints []string
	used      atomic.Bool

	mu   sync.Mutex
	snap Snapshot
}

// New returns a Driver for opt. The endpoint list is normalized here so
// Snapshot reflects it before Run starts.
func New(opt Options) *Driver {
	opt.normalize()
	if opt.RunID == "" {
		opt.RunID = ulid.Make().String()
	}
	endpoints := Dedupe(opt.Endpoints)
	d := &Driver{opt: opt, endpoints: endpoints}
	d.publish(NewCoordinator(endpoints), time.Time{})
	return d
}

// Dedupe trims endpoint URLs, drops blanks and keeps the first occurrence of
// each URL in input order.
func Dedupe(endpoints []string) []string {
	seen := make(map[string]bool, len(endpoints))
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" || seen[ep] {
			continue
		}
		seen[ep] = true
		out = append(out, ep)
	}
	return out
}

// Endpoints returns the normalized endpoint list.
func (d *Driver) Endpoints() []string { return append([]string(nil), d.endpoints...) }

// RunID identifies this run in logs, traces and reports.
func (d *Driver) RunID() string { return d.opt.RunID }

// Snapshot returns the latest published run state. It is safe to call from
// any goroutine while Run is in progress.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.snap
	s.Endpoints = append([]EndpointStatus(nil), d.snap.Endpoints...)
	return s
}

func (d *Driver) publish(c *Coordinator, started time.Time) {
	d.mu.Lock()
	d.snap = Snapshot{
		RunID:     d.opt.RunID,
		Started:   started,
		Phase:     c.Phase(),
		State:     c.State(),
		Endpoints: c.Statuses(),
	}
	d.mu.Unlock()
}

type envelope struct {
	endpoint string
	event    protocol.Event
}

// session is the mutable state of one Run, owned by the loop goroutine.
type session struct {
	d       *Driver
	ctx     context.Context
	started time.Time
	coord   *Coordinator
	agg     *metrics.Aggregator
	conns   []Connection
	spans   map[string]trace.Span
	inbox   chan envelope
	aborter string
}

// Run connects to every endpoint, waits for all of them to become ready,
// starts the benchmark everywhere at once and aggregates the results.
//
// A failure before the benchmark starts aborts the run: Run returns a nil
// report and an *AbortedError. A failure afterwards only degrades the
// report. Cancelling ctx after the start returns the partial report
// together with an *AbortedError.
func (d *Driver) Run(ctx context.Context) (*metrics.Report, error) {
	if !d.used.CompareAndSwap(false, true) {
		return nil, ErrDriverUsed
	}
	if len(d.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runCtx, runSpan := tracing.StartRunSpan(runCtx, d.opt.Tracer, d.opt.RunID, len(d.endpoints))

	s := &session{
		d:       d,
		ctx:     runCtx,
		started: time.Now(),
		coord:   NewCoordinator(d.endpoints),
		agg:     metrics.NewAggregator(),
		spans:   make(map[string]trace.Span, len(d.endpoints)),
		inbox:   make(chan envelope, len(d.endpoints)),
	}
	d.publish(s.coord, s.started)

	log := d.opt.Logger.With("run_id", d.opt.RunID)
	log.Info("connecting", "servers", len(d.endpoints))

	report, err := s.run(ctx)
	s.terminateAll(s.aborter)
	s.logTraffic(log)
	for ep, span := range s.spans {
		tracing.EndSpan(span, errorFor(s.coord, ep))
	}
	d.publish(s.coord, s.started)

	var attrs []attribute.KeyValue
	if report != nil {
		attrs = append(attrs,
			attribute.Int("benchan.contributors", len(report.Contributors)),
			attribute.Bool("benchan.degraded", report.Degraded),
		)
	}
	tracing.EndSpan(runSpan, err, attrs...)

	switch {
	case err != nil:
		log.Error("benchmark aborted", "error", err)
	case report.Degraded:
		log.Warn("benchmark finished degraded", "failed", len(report.Failed))
	default:
		log.Info("benchmark finished", "elapsed", time.Since(s.started))
	}
	return report, err
}

func (s *session) run(parent context.Context) (*metrics.Report, error) {
	if err := s.dialAll(); err != nil {
		if s.ctx.Err() != nil {
			return s.interrupt(parent)
		}
		ep := endpointOf(err)
		s.aborter = ep
		t := s.coord.Observe(ep, protocol.Failed(err))
		s.notify(ep, protocol.Failed(err))
		if t.Abort != nil {
			return nil, t.Abort
		}
		return nil, &AbortedError{Endpoint: ep, Cause: err}
	}

	for _, c := range s.conns {
		go s.forward(c)
	}

	for {
		select {
		case <-s.ctx.Done():
			return s.interrupt(parent)
		case env := <-s.inbox:
			if done, report, err := s.handle(env); done {
				return report, err
			}
		}
	}
}

// dialAll opens every connection, paced by the connect rate. The first dial
// failure cancels the rest.
func (s *session) dialAll() error {
	opt := s.d.opt
	dialer := WithRetry(opt.Dialer, opt.Retry, opt.Logger)
	limiter := opt.LimiterFactory(opt.ConnectRate)

	conns := make([]Connection, len(s.d.endpoints))
	spans := make([]trace.Span, len(s.d.endpoints))
	g, gctx := errgroup.WithContext(s.ctx)
	for i, ep := range s.d.endpoints {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return &protocol.ConnectError{Endpoint: ep, Err: err}
			}
			dctx, span := tracing.StartConnectionSpan(gctx, opt.Tracer, ep)
			spans[i] = span
			c, err := dialer.Dial(dctx, ep)
			if err != nil {
				var ce *protocol.ConnectError
				if !errors.As(err, &ce) {
					err = &protocol.ConnectError{Endpoint: ep, Err: err}
				}
				return err
			}
			opt.Logger.Debug("connected", "endpoint", ep)
			conns[i] = c
			return nil
		})
	}
	err := g.Wait()

	for i, ep := range s.d.endpoints {
		if spans[i] != nil {
			s.spans[ep] = spans[i]
		}
		if conns[i] != nil {
			s.conns = append(s.conns, conns[i])
		}
	}
	return err
}

// forward relays one connection's events into the shared inbox. A stream
// that closes without a terminal event is reported as a failure; the
// coordinator ignores it for connections that already finished.
func (s *session) forward(c Connection) {
	for ev := range c.Events() {
		select {
		case s.inbox <- envelope{endpoint: c.Endpoint(), event: ev}:
		case <-s.ctx.Done():
			return
		}
	}
	select {
	case s.inbox <- envelope{endpoint: c.Endpoint(), event: protocol.Failed(ErrStreamClosed)}:
	case <-s.ctx.Done():
	}
}

// handle applies one event and any failures it causes. It reports done when
// the run reached a terminal phase.
func (s *session) handle(first envelope) (bool, *metrics.Report, error) {
	log := s.d.opt.Logger
	pending := []envelope{first}
	for len(pending) > 0 {
		env := pending[0]
		pending = pending[1:]

		t := s.coord.Observe(env.endpoint, env.event)
		if t.Anomaly != "" {
			log.Warn(t.Anomaly, "endpoint", env.endpoint, "event", env.event.String())
			continue
		}
		if !t.Changed {
			continue
		}
		s.logEvent(env)
		if span := s.spans[env.endpoint]; span != nil {
			tracing.AddPhaseEvent(span, env.event.Kind.String())
		}
		s.d.publish(s.coord, s.started)
		s.notify(env.endpoint, env.event)

		if t.Ingest != nil {
			if err := s.agg.Ingest(env.endpoint, t.Ingest); err != nil {
				log.Error("discarding results", "endpoint", env.endpoint, "error", err)
			}
		}
		if t.Abort != nil {
			s.aborter = env.endpoint
			s.terminateAll(env.endpoint)
			return true, nil, t.Abort
		}
		if t.Broadcast {
			pending = append(pending, s.broadcast(protocol.CommandRun)...)
			pending = append(pending, s.broadcast(protocol.CommandInitialize)...)
		}
		if t.Complete {
			return true, s.report(false), nil
		}
	}
	return false, nil, nil
}

// broadcast sends cmd to every connection concurrently. Send failures come
// back as Failed events for the caller to apply.
func (s *session) broadcast(cmd protocol.Command) []envelope {
	s.d.opt.Logger.Info("broadcasting", "command", string(cmd), "servers", len(s.conns))
	s.d.opt.OnNotice(Notice{Command: cmd, Phase: s.coord.Phase(), State: s.coord.State()})

	errs := make([]error, len(s.conns))
	var wg sync.WaitGroup
	for i, c := range s.conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Send(s.ctx, cmd)
		}()
	}
	wg.Wait()

	var failed []envelope
	for i, err := range errs {
		if err != nil {
			ep := s.conns[i].Endpoint()
			s.conns[i].Terminate()
			failed = append(failed, envelope{endpoint: ep, event: protocol.Failed(err)})
		}
	}
	return failed
}

func (s *session) interrupt(parent context.Context) (*metrics.Report, error) {
	cause := context.Cause(parent)
	if cause == nil {
		cause = s.ctx.Err()
	}
	started := s.coord.Interrupt(cause)
	s.d.publish(s.coord, s.started)
	s.notify("", protocol.Failed(cause))
	abort := &AbortedError{Cause: cause}
	if !started {
		return nil, abort
	}
	return s.report(true), abort
}

func (s *session) report(partial bool) *metrics.Report {
	r := s.agg.Report(len(s.d.endpoints))
	r.RunID = s.d.opt.RunID
	r.Failed = s.coord.Failures()
	r.Degraded = len(r.Failed) > 0
	r.Partial = partial
	return r
}

func (s *session) terminateAll(except string) {
	for _, c := range s.conns {
		if c.Endpoint() != except {
			c.Terminate()
		}
	}
}

// trafficReporter is implemented by connections that count their frames.
type trafficReporter interface {
	Traffic() clientmetrics.Snapshot
}

func (s *session) logTraffic(log *slog.Logger) {
	for _, c := range s.conns {
		tr, ok := c.(trafficReporter)
		if !ok {
			continue
		}
		t := tr.Traffic()
		log.Debug("connection traffic",
			"endpoint", c.Endpoint(),
			"frames_sent", t.MessagesSent,
			"frames_received", t.MessagesReceived,
			"bytes_received", t.BytesReceived,
			"errors", t.Errors,
			"connected_for", t.ConnectionDuration,
		)
	}
}

func (s *session) notify(endpoint string, ev protocol.Event) {
	s.d.opt.OnNotice(Notice{
		Endpoint: endpoint,
		Event:    ev,
		Phase:    s.coord.Phase(),
		State:    s.coord.State(),
	})
}

func (s *session) logEvent(env envelope) {
	log := s.d.opt.Logger
	switch env.event.Kind {
	case protocol.EventReady:
		log.Info("endpoint ready", "endpoint", env.endpoint)
	case protocol.EventRunning:
		log.Debug("endpoint running", "endpoint", env.endpoint)
	case protocol.EventResults:
		log.Info("results received", "endpoint", env.endpoint)
	case protocol.EventFailed:
		log.Warn("endpoint failed", "endpoint", env.endpoint, "phase", s.coord.Phase().String(), "error", env.event.Err)
	}
}

func endpointOf(err error) string {
	var ce *protocol.ConnectError
	if errors.As(err, &ce) {
		return ce.Endpoint
	}
	return ""
}

func errorFor(c *Coordinator, endpoint string) error {
	for _, st := range c.Statuses() {
		if st.URL == endpoint {
			return st.Err
		}
	}
	return nil
}
