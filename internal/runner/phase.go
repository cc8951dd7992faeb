package runner

import (
	"github.com/torosent/benchan/internal/metrics"
	"github.com/torosent/benchan/internal/protocol"
)

// ConnPhase is where a single connection is in the benchmark handshake.
type ConnPhase int

const (
	ConnConnecting ConnPhase = iota
	ConnReady
	ConnRunning
	ConnDone
	ConnFailed
)

func (p ConnPhase) String() string {
	switch p {
	case ConnConnecting:
		return "connecting"
	case ConnReady:
		return "ready"
	case ConnRunning:
		return "running"
	case ConnDone:
		return "done"
	case ConnFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (p ConnPhase) terminal() bool { return p == ConnDone || p == ConnFailed }

// GlobalPhase is where the run as a whole is.
type GlobalPhase int

const (
	AwaitingReady GlobalPhase = iota
	AwaitingResults
	Complete
	Aborted
)

func (p GlobalPhase) String() string {
	switch p {
	case AwaitingReady:
		return "awaiting ready"
	case AwaitingResults:
		return "awaiting results"
	case Complete:
		return "complete"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// RunState counts connections per phase.
type RunState struct {
	Initializing int `json:"initializing"`
	Ready        int `json:"ready"`
	Running      int `json:"running"`
	Finished     int `json:"finished"`
	Failed       int `json:"failed"`
}

func (s *RunState) bucket(p ConnPhase) *int {
	switch p {
	case ConnConnecting:
		return &s.Initializing
	case ConnReady:
		return &s.Ready
	case ConnRunning:
		return &s.Running
	case ConnDone:
		return &s.Finished
	default:
		return &s.Failed
	}
}

// EndpointStatus is the externally visible state of one connection.
type EndpointStatus struct {
	URL   string
	Phase ConnPhase
	Err   error
}

// Transition tells the driver what to do after an event was observed.
type Transition struct {
	Changed   bool                    // the connection moved to a new phase
	Broadcast bool                    // every endpoint is ready; send run then initialize
	Ingest    *protocol.ResultPayload // results to hand to the aggregator
	Abort     *AbortedError           // the run aborted because of this event
	Complete  bool                    // every connection is terminal
	Anomaly   string                  // diagnostic for events that changed nothing
}

type connState struct {
	phase ConnPhase
	err   error
}

// Coordinator is the phase state machine shared by all connections of one
// run. It is not safe for concurrent use; the driver's loop owns it.
type Coordinator struct {
	order     []string
	conns     map[string]*connState
	phase     GlobalPhase
	state     RunState
	readySeen int
}

// NewCoordinator tracks the given, already de-duplicated, endpoints.
func NewCoordinator(endpoints []string) *Coordinator {
	c := &Coordinator{
		order: append([]string(nil), endpoints...),
		conns: make(map[string]*connState, len(endpoints)),
	}
	for _, ep := range endpoints {
		c.conns[ep] = &connState{phase: ConnConnecting}
	}
	c.state.Initializing = len(endpoints)
	return c
}

// Phase returns the global phase.
func (c *Coordinator) Phase() GlobalPhase { return c.phase }

// State returns the per-phase connection counts.
func (c *Coordinator) State() RunState { return c.state }

// Statuses returns every endpoint's phase in input order.
func (c *Coordinator) Statuses() []EndpointStatus {
	out := make([]EndpointStatus, 0, len(c.order))
	for _, ep := range c.order {
		st := c.conns[ep]
		out = append(out, EndpointStatus{URL: ep, Phase: st.phase, Err: st.err})
	}
	return out
}

// Failures lists endpoints that ended without results.
func (c *Coordinator) Failures() []metrics.FailedEndpoint {
	var out []metrics.FailedEndpoint
	for _, ep := range c.order {
		st := c.conns[ep]
		if st.phase != ConnFailed {
			continue
		}
		msg := "unknown error"
		if st.err != nil {
			msg = st.err.Error()
		}
		out = append(out, metrics.FailedEndpoint{URL: ep, Error: msg})
	}
	return out
}

// Observe applies one event from endpoint.
func (c *Coordinator) Observe(endpoint string, ev protocol.Event) Transition {
	if c.phase == Complete || c.phase == Aborted {
		return Transition{Anomaly: "event after the run ended"}
	}
	st, ok := c.conns[endpoint]
	if !ok {
		return Transition{Anomaly: "event from an unknown endpoint"}
	}
	if st.phase.terminal() {
		// A connection that already delivered results may still drop; that
		// is not a failure.
		return Transition{}
	}

	var t Transition
	switch ev.Kind {
	case protocol.EventReady:
		if st.phase != ConnConnecting {
			return Transition{Anomaly: "duplicate READY"}
		}
		c.move(st, ConnReady)
		c.readySeen++
		t.Changed = true
		if c.phase == AwaitingReady && c.readySeen == len(c.order) {
			c.phase = AwaitingResults
			t.Broadcast = true
		}

	case protocol.EventRunning:
		if st.phase != ConnReady {
			return Transition{Anomaly: "RUNNING from a connection that is not ready"}
		}
		c.move(st, ConnRunning)
		t.Changed = true

	case protocol.EventResults:
		if c.phase != AwaitingResults || st.phase == ConnConnecting {
			return Transition{Anomaly: "RESULTS before the benchmark started"}
		}
		c.move(st, ConnDone)
		t.Changed = true
		t.Ingest = ev.Payload

	case protocol.EventFailed:
		c.move(st, ConnFailed)
		st.err = ev.Err
		t.Changed = true
		if c.phase == AwaitingReady {
			c.phase = Aborted
			t.Abort = &AbortedError{Endpoint: endpoint, Cause: ev.Err}
			return t
		}

	default:
		return Transition{Anomaly: "unrecognized message"}
	}

	if c.phase == AwaitingResults && c.state.Finished+c.state.Failed == len(c.order) {
		c.phase = Complete
		t.Complete = true
	}
	return t
}

// Interrupt aborts the run from outside, marking every unfinished
// connection failed with cause. It reports whether the benchmark had already
// started, in which case collected results remain meaningful.
func (c *Coordinator) Interrupt(cause error) (started bool) {
	if c.phase == Complete || c.phase == Aborted {
		return false
	}
	started = c.phase == AwaitingResults
	for _, ep := range c.order {
		st := c.conns[ep]
		if !st.phase.terminal() {
			c.move(st, ConnFailed)
			st.err = cause
		}
	}
	c.phase = Aborted
	return started
}

func (c *Coordinator) move(st *connState, to ConnPhase) {
	*c.state.bucket(st.phase)--
	*c.state.bucket(to)++
	st.phase = to
}
