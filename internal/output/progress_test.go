package output

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/benchan/internal/protocol"
	"github.com/torosent/benchan/internal/runner"
)

func TestProgressLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)

	p.Connecting(2)
	p.Notice(runner.Notice{Endpoint: "ws://a", Event: protocol.Ready()})
	p.Notice(runner.Notice{Endpoint: "ws://b", Event: protocol.Ready()})
	p.Notice(runner.Notice{Command: protocol.CommandRun})
	p.Notice(runner.Notice{Command: protocol.CommandInitialize})
	p.Notice(runner.Notice{Endpoint: "ws://a", Event: protocol.Running()})
	p.Notice(runner.Notice{Endpoint: "ws://b", Event: protocol.Failed(errors.New("reset"))})
	p.Notice(runner.Notice{Event: protocol.Failed(errors.New("interrupted"))})
	p.Finished()

	want := strings.Join([]string{
		"connecting to 2 Nchan servers...",
		"  ws://a ok",
		"  ws://b ok",
		"start benchmark...",
		"initializing benchmark...",
		"  ws://a running",
		"  ws://b failed: reset",
		"finished.",
		"",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("progress output =\n%q\nwant\n%q", got, want)
	}
}

func TestProgressSingularServer(t *testing.T) {
	var buf bytes.Buffer
	NewProgress(&buf).Connecting(1)
	if got := buf.String(); got != "connecting to 1 Nchan server...\n" {
		t.Errorf("Connecting(1) = %q", got)
	}
}

func TestProgressAborted(t *testing.T) {
	var buf bytes.Buffer
	NewProgress(&buf).Aborted(errors.New("benchmark aborted by ws://a: refused"))
	if got := buf.String(); got != "  benchmark aborted by ws://a: refused\n" {
		t.Errorf("Aborted() = %q", got)
	}
}

func TestProgressNilWriter(t *testing.T) {
	NewProgress(nil).Connecting(3)
}

func TestStatusLine(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	snap := runner.Snapshot{
		Started: start,
		Phase:   runner.AwaitingResults,
		State:   runner.RunState{Running: 2, Finished: 1, Failed: 1},
	}
	got := StatusLine(snap, start.Add(90*time.Second+300*time.Millisecond))
	for _, want := range []string{"[awaiting results]", "running: 2", "finished: 1", "failed: 1", "elapsed: 1m30s"} {
		if !strings.Contains(got, want) {
			t.Errorf("StatusLine() = %q, missing %q", got, want)
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressReporterPrintsWhileAwaitingResults(t *testing.T) {
	var buf syncBuffer
	snap := func() runner.Snapshot {
		return runner.Snapshot{Phase: runner.AwaitingResults, State: runner.RunState{Running: 3}}
	}
	reporter := NewProgressReporter(snap, 10*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), "running: 3") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	reporter.Stop()
	reporter.Stop()

	if !strings.Contains(buf.String(), "running: 3") {
		t.Errorf("expected a status line, got %q", buf.String())
	}
}

func TestProgressReporterQuietBeforeStart(t *testing.T) {
	var buf syncBuffer
	snap := func() runner.Snapshot {
		return runner.Snapshot{Phase: runner.AwaitingReady}
	}
	reporter := NewProgressReporter(snap, 5*time.Millisecond, &buf)
	reporter.Start()
	time.Sleep(40 * time.Millisecond)
	reporter.Stop()

	if buf.String() != "" {
		t.Errorf("reporter printed before the benchmark started: %q", buf.String())
	}
}
