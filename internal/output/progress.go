package output

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/benchan/internal/protocol"
	"github.com/torosent/benchan/internal/runner"
)

// Progress prints the run's milestones as they happen.
type Progress struct {
	mu sync.Mutex
	w  io.Writer
}

// NewProgress returns a Progress writing to w.
func NewProgress(w io.Writer) *Progress {
	if w == nil {
		w = io.Discard
	}
	return &Progress{w: w}
}

// Connecting announces the dial phase.
func (p *Progress) Connecting(n int) {
	suffix := "s"
	if n == 1 {
		suffix = ""
	}
	p.printf("connecting to %d Nchan server%s...\n", n, suffix)
}

// Notice prints the line for one driver notice. It can be passed directly as
// runner.Options.OnNotice.
func (p *Progress) Notice(n runner.Notice) {
	switch n.Command {
	case protocol.CommandRun:
		p.printf("start benchmark...\n")
		return
	case protocol.CommandInitialize:
		p.printf("initializing benchmark...\n")
		return
	}
	if n.Endpoint == "" {
		return
	}
	switch n.Event.Kind {
	case protocol.EventReady:
		p.printf("  %s ok\n", n.Endpoint)
	case protocol.EventRunning:
		p.printf("  %s running\n", n.Endpoint)
	case protocol.EventResults:
		p.printf("  %s finished\n", n.Endpoint)
	case protocol.EventFailed:
		p.printf("  %s failed: %v\n", n.Endpoint, n.Event.Err)
	}
}

// Finished closes a completed run.
func (p *Progress) Finished() {
	p.printf("finished.\n\n")
}

// Aborted prints the error that ended the run.
func (p *Progress) Aborted(err error) {
	p.printf("  %v\n", err)
}

func (p *Progress) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

// ProgressReporter periodically prints a status line built from driver
// snapshots. Long benchmarks are otherwise silent between RUNNING and RESULTS.
type ProgressReporter struct {
	snapshot func() runner.Snapshot
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(snapshot func() runner.Snapshot, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		snapshot: snapshot,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			snap := p.snapshot()
			if snap.Phase != runner.AwaitingResults {
				continue
			}
			fmt.Fprintln(p.writer, StatusLine(snap, time.Now()))
		case <-p.done:
			return
		}
	}
}

// StatusLine summarizes a snapshot in one line.
func StatusLine(snap runner.Snapshot, now time.Time) string {
	s := snap.State
	line := fmt.Sprintf("[%s] ready: %d | running: %d | finished: %d | failed: %d",
		snap.Phase, s.Ready, s.Running, s.Finished, s.Failed)
	if !snap.Started.IsZero() {
		line += fmt.Sprintf(" | elapsed: %s", now.Sub(snap.Started).Truncate(time.Second))
	}
	return line
}
