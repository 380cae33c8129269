// Package session implements the client and server session state
// machines of spec §4.2–§4.3: threaded conversations over a Transport,
// per-request reply queues, and the CONNECT/DISCONNECT lifecycle.
// Grounded on the teacher's session/notification plumbing
// (internal/infrastructure/server/session.go, sse_session.go) — the
// channel-driven event loop and uuid-keyed identity carry over; the
// session-state machine and request correlation are new to this domain.
package session

import (
	"fmt"
	"sync"
	"time"
)

// State is the session lifecycle (spec §3 "state ∈ {DISCONNECTED,
// CONNECTING, CONNECTED}").
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session correlates one conversation (spec §3 "Session"). It is the
// common base embedded by ClientSession; server-side sessions are plain
// *Session values held in the Runtime's session cache.
type Session struct {
	mu sync.RWMutex

	thread       string
	service      string
	remoteID     string
	origRemoteID string
	locale       string
	state        State
	requests     map[int]*Request
	notify       chan struct{}
}

func newSession(thread, service, remoteID, locale string) *Session {
	return &Session{
		thread:       thread,
		service:      service,
		remoteID:     remoteID,
		origRemoteID: remoteID,
		locale:       locale,
		state:        StateDisconnected,
		requests:     make(map[int]*Request),
		notify:       make(chan struct{}, 1),
	}
}

func (s *Session) Thread() string { return s.thread }

func (s *Session) Service() string { return s.service }

func (s *Session) Locale() string { return s.locale }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// WaitState blocks until the session reaches want or timeout elapses,
// returning whether it reached that state. Used by ClientSession.Connect
// (spec §4.3 "waits up to timeout seconds for state=CONNECTED").
func (s *Session) WaitState(want State, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.State() == want {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return s.State() == want
		}
		timer := time.NewTimer(remaining)
		select {
		case <-s.notify:
			timer.Stop()
		case <-timer.C:
			timer.Stop()
		}
	}
}

// RemoteID is the JID currently routed to — the router target until the
// first reply is seen, then the drone that answered (spec §4.2 step 3).
func (s *Session) RemoteID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteID
}

func (s *Session) setRemoteID(jid string) {
	s.mu.Lock()
	s.remoteID = jid
	s.mu.Unlock()
}

// ResetRemoteID restores remote_id to the original router target (spec
// §4.3 "remote_id is reset to the original router target before each
// send" when the session is not CONNECTED).
func (s *Session) ResetRemoteID() {
	s.mu.Lock()
	s.remoteID = s.origRemoteID
	s.mu.Unlock()
}

// AddRequest registers req under its rid.
func (s *Session) AddRequest(req *Request) {
	s.mu.Lock()
	s.requests[req.Rid] = req
	s.mu.Unlock()
}

// LookupRequest returns the request with the given threadTrace, if any
// (spec §8 law 2, "thread correlation").
func (s *Session) LookupRequest(rid int) (*Request, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[rid]
	return r, ok
}

// RemoveRequest drops a completed request from the session's table.
func (s *Session) RemoveRequest(rid int) {
	s.mu.Lock()
	delete(s.requests, rid)
	s.mu.Unlock()
}

// Cleanup tears the session down: forces DISCONNECTED and drops every
// tracked request. Callers remove the session from the Runtime's cache
// separately (spec §5 "entries are removed by explicit cleanup() and
// must be removed when a session terminates to avoid leaks").
func (s *Session) Cleanup() {
	s.mu.Lock()
	s.state = StateDisconnected
	s.requests = make(map[int]*Request)
	s.mu.Unlock()
}
