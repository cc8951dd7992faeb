package clientmetrics

import (
	"sync"
	"time"
)

// ClientMetrics tracks traffic on a single endpoint connection.
type ClientMetrics struct {
	mu           sync.Mutex
	connectTime  time.Time
	lastReceived time.Time
	messagesSent int64
	messagesRecv int64
	bytesSent    int64
	bytesRecv    int64
	errors       int64
}

// New creates a new ClientMetrics instance.
func New() *ClientMetrics {
	return &ClientMetrics{}
}

// MarkConnected records the connection time.
func (m *ClientMetrics) MarkConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectTime = time.Now()
}

// IncrementSent counts one outbound frame of the given size.
func (m *ClientMetrics) IncrementSent(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesSent++
	m.bytesSent += bytes
}

// IncrementReceived counts one inbound frame of the given size.
func (m *ClientMetrics) IncrementReceived(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messagesRecv++
	m.bytesRecv += bytes
	m.lastReceived = time.Now()
}

// IncrementErrors increments the error counter.
func (m *ClientMetrics) IncrementErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ConnectionDuration time.Duration
	SinceLastReceived  time.Duration
	MessagesSent       int64
	MessagesReceived   int64
	BytesSent          int64
	BytesReceived      int64
	Errors             int64
}

// Snapshot returns a consistent snapshot of all counters.
func (m *ClientMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s := Snapshot{
		MessagesSent:     m.messagesSent,
		MessagesReceived: m.messagesRecv,
		BytesSent:        m.bytesSent,
		BytesReceived:    m.bytesRecv,
		Errors:           m.errors,
	}
	if !m.connectTime.IsZero() {
		s.ConnectionDuration = now.Sub(m.connectTime)
	}
	if !m.lastReceived.IsZero() {
		s.SinceLastReceived = now.Sub(m.lastReceived)
	}
	return s
}
