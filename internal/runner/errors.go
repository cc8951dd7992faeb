package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEndpoints is returned when no usable endpoint URL was supplied.
	ErrNoEndpoints = errors.New("no endpoints to benchmark")
	// ErrDriverUsed is returned by a second call to Run on the same Driver.
	ErrDriverUsed = errors.New("driver has already run")
	// ErrStreamClosed marks a connection whose event stream ended before it
	// reached a terminal phase.
	ErrStreamClosed = errors.New("connection closed without a terminal event")
)

// AbortedError reports a run that stopped before every endpoint finished.
// Endpoint is empty when the run was interrupted from outside.
type AbortedError struct {
	Endpoint string
	Cause    error
}

func (e *AbortedError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("benchmark aborted: %v", e.Cause)
	}
	return fmt.Sprintf("benchmark aborted by %s: %v", e.Endpoint, e.Cause)
}

func (e *AbortedError) Unwrap() error { return e.Cause }
