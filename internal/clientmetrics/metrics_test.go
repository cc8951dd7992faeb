package clientmetrics

import (
	"sync"
	"testing"
	"time"
)

func TestSnapshotCounts(t *testing.T) {
	m := New()
	m.MarkConnected()
	m.IncrementSent(5)
	m.IncrementSent(10)
	m.IncrementReceived(128)
	m.IncrementErrors()

	s := m.Snapshot()
	if s.MessagesSent != 2 || s.BytesSent != 15 {
		t.Errorf("sent = %d msgs / %d bytes", s.MessagesSent, s.BytesSent)
	}
	if s.MessagesReceived != 1 || s.BytesReceived != 128 {
		t.Errorf("received = %d msgs / %d bytes", s.MessagesReceived, s.BytesReceived)
	}
	if s.Errors != 1 {
		t.Errorf("errors = %d", s.Errors)
	}
	if s.ConnectionDuration < 0 || s.ConnectionDuration > time.Second {
		t.Errorf("connection duration = %v", s.ConnectionDuration)
	}
}

func TestSnapshotBeforeConnect(t *testing.T) {
	s := New().Snapshot()
	if s.ConnectionDuration != 0 || s.SinceLastReceived != 0 {
		t.Errorf("durations should be zero before any activity: %+v", s)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.IncrementReceived(1)
			}
		}()
	}
	wg.Wait()
	if got := m.Snapshot().MessagesReceived; got != 800 {
		t.Errorf("received = %d, want 800", got)
	}
}
