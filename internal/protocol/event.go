// Package protocol implements the text protocol spoken by benchmark endpoints.
//
// Endpoints send READY once they accept a connection, RUNNING when the
// benchmark starts, and a single "RESULTS\n<json>" frame when it ends. The
// driver answers with the "run" and "initialize" control commands.
package protocol

import "fmt"

// Command is an outbound control command.
type Command string

const (
	CommandRun        Command = "run"
	CommandInitialize Command = "initialize"
)

// AcceptHeader asks endpoints to ship latency histograms inside RESULTS.
const AcceptHeader = "text/x-json-hdrhistogram"

const (
	msgReady      = "READY"
	msgRunning    = "RUNNING"
	resultsPrefix = "RESULTS\n"
)

// EventKind tags an Event.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventReady
	EventRunning
	EventResults
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventRunning:
		return "running"
	case EventResults:
		return "results"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one classified inbound occurrence on a connection.
type Event struct {
	Kind    EventKind
	Payload *ResultPayload // EventResults only
	Err     error          // EventFailed only
	Raw     string         // EventUnknown only
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Kind == EventResults || e.Kind == EventFailed
}

func (e Event) String() string {
	switch e.Kind {
	case EventFailed:
		return fmt.Sprintf("failed: %v", e.Err)
	case EventUnknown:
		return fmt.Sprintf("unknown: %q", truncate(e.Raw, 64))
	default:
		return e.Kind.String()
	}
}

// Ready returns a ready event.
func Ready() Event { return Event{Kind: EventReady} }

// Running returns a running event.
func Running() Event { return Event{Kind: EventRunning} }

// Results returns a results event carrying p.
func Results(p *ResultPayload) Event { return Event{Kind: EventResults, Payload: p} }

// Failed returns a failure event carrying err.
func Failed(err error) Event { return Event{Kind: EventFailed, Err: err} }

// Unknown returns an event for an unrecognized message.
func Unknown(raw string) Event { return Event{Kind: EventUnknown, Raw: raw} }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
