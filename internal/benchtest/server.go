package benchtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Behavior scripts how a fake endpoint reacts to a benchmark run.
type Behavior struct {
	Payload         string        // RESULTS body; sent after "initialize"
	Greeting        []string      // raw frames sent before READY
	ReadyDelay      time.Duration // pause before READY
	ResultsDelay    time.Duration // pause between "initialize" and RESULTS
	SkipReady       bool          // never send READY
	RejectUpgrade   bool          // answer the handshake with 503
	DropBeforeReady bool          // close the socket instead of sending READY
	DropAfterRun    bool          // close the socket instead of sending RESULTS
}

// Endpoint is a running fake endpoint.
type Endpoint struct {
	URL string

	server   *httptest.Server
	behavior Behavior

	mu       sync.Mutex
	commands []string
	headers  http.Header
	conns    []*websocket.Conn
	notify   chan struct{}
}

// NewEndpoint starts a fake endpoint on a loopback port.
func NewEndpoint(b Behavior) *Endpoint {
	e := &Endpoint{behavior: b, notify: make(chan struct{}, 64)}
	e.server = httptest.NewServer(http.HandlerFunc(e.serve))
	e.URL = "ws" + strings.TrimPrefix(e.server.URL, "http")
	return e
}

// Handler returns the endpoint's HTTP handler for mounting elsewhere.
func Handler(b Behavior) http.Handler {
	e := &Endpoint{behavior: b, notify: make(chan struct{}, 64)}
	return http.HandlerFunc(e.serve)
}

// Close shuts the endpoint down, including upgraded connections.
func (e *Endpoint) Close() {
	e.mu.Lock()
	for _, c := range e.conns {
		c.Close()
	}
	e.mu.Unlock()
	e.server.Close()
}

// Commands returns the control commands received so far, in order.
func (e *Endpoint) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

// Header returns the handshake headers of the most recent connection.
func (e *Endpoint) Header() http.Header {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.headers.Clone()
}

// WaitCommands blocks until n commands arrived or the timeout passed.
func (e *Endpoint) WaitCommands(n int, timeout time.Duration) []string {
	deadline := time.After(timeout)
	for {
		if cmds := e.Commands(); len(cmds) >= n {
			return cmds
		}
		select {
		case <-e.notify:
		case <-deadline:
			return e.Commands()
		}
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (e *Endpoint) serve(w http.ResponseWriter, r *http.Request) {
	if e.behavior.RejectUpgrade {
		http.Error(w, "benchmark unavailable", http.StatusServiceUnavailable)
		return
	}
	e.mu.Lock()
	e.headers = r.Header.Clone()
	e.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	e.mu.Lock()
	e.conns = append(e.conns, conn)
	e.mu.Unlock()

	var writeMu sync.Mutex
	write := func(s string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, []byte(s))
	}

	for _, g := range e.behavior.Greeting {
		if write(g) != nil {
			return
		}
	}
	if e.behavior.ReadyDelay > 0 {
		time.Sleep(e.behavior.ReadyDelay)
	}
	if e.behavior.DropBeforeReady {
		return
	}
	if !e.behavior.SkipReady {
		if write("READY") != nil {
			return
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd := string(data)
		e.mu.Lock()
		e.commands = append(e.commands, cmd)
		e.mu.Unlock()
		select {
		case e.notify <- struct{}{}:
		default:
		}

		switch cmd {
		case "run":
			if write("RUNNING") != nil {
				return
			}
		case "initialize":
			if e.behavior.ResultsDelay > 0 {
				time.Sleep(e.behavior.ResultsDelay)
			}
			if e.behavior.DropAfterRun {
				return
			}
			if write("RESULTS\n"+e.behavior.Payload) != nil {
				return
			}
		}
	}
}
