// Package runner coordinates one benchmark run across many endpoints.
//
// A [Driver] dials every endpoint, waits until all of them report READY,
// broadcasts the run and initialize commands, and folds each endpoint's
// RESULTS into a [metrics.Report].
//
// # Basic Usage
//
//	drv := runner.New(runner.Options{
//		Endpoints:   urls,
//		Dialer:      runner.WebSocketDialer(conn.Options{}, false),
//		ConnectRate: 10,
//	})
//	report, err := drv.Run(ctx)
//
// # Phases
//
// Each connection moves through connecting, ready, running and then done or
// failed. The run as a whole is awaiting ready until every endpoint is
// ready, then awaiting results until every connection is done or failed.
// A [Coordinator] holds this state machine and is driven from a single
// goroutine.
//
// # Failure Handling
//
// A failure while awaiting ready aborts the run with an [AbortedError] and
// no command is ever sent. A failure once the benchmark has started marks
// the report degraded and the remaining endpoints keep running.
// Cancelling the context returns whatever results arrived, flagged partial.
//
// # Middleware
//
// [WithRetry] wraps a [Dialer] with retries; [BackoffPolicy] builds the
// capped exponential policy used by the command line.
package runner
