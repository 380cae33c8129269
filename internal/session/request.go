package session

import (
	"sync"
	"time"

	"github.com/opensrf-project/opensrf-go/internal/message"
)

// Request is one method call (spec §3 "Request"). Recv implements the
// timeout/CONTINUE-extension/completion rules of spec §4.3 and the laws
// of spec §8 (completion ordering, continue extension).
type Request struct {
	mu sync.Mutex

	Rid    int
	Method string
	Params []message.Value

	queue        []message.Value
	complete     bool
	resetTimeout bool

	SendTime          time.Time
	FirstResponseTime time.Time
	CompleteTime      time.Time

	// LastStatus/LastStatusText record the most recent STATUS seen for
	// this request, so callers can build a ServiceException for 404/500
	// (spec §4.2, §7) after Recv reports no more queued values.
	LastStatus     message.StatusCode
	LastStatusText string

	notify chan struct{}
}

// NewRequest creates a Request ready to be tracked by a session.
func NewRequest(rid int, method string, params []message.Value) *Request {
	return &Request{
		Rid:      rid,
		Method:   method,
		Params:   params,
		SendTime: time.Now(),
		notify:   make(chan struct{}, 1),
	}
}

func (r *Request) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Push appends a reply payload to the queue (spec §4.2 "RESULT: append
// payload to the matching request's queue").
func (r *Request) Push(v message.Value) {
	r.mu.Lock()
	if len(r.queue) == 0 && r.FirstResponseTime.IsZero() {
		r.FirstResponseTime = time.Now()
	}
	r.queue = append(r.queue, v)
	r.mu.Unlock()
	r.signal()
}

// MarkComplete records STATUS 205 COMPLETE (spec §4.2).
func (r *Request) MarkComplete() {
	r.mu.Lock()
	r.complete = true
	r.CompleteTime = time.Now()
	r.mu.Unlock()
	r.signal()
}

// ExtendTimeout records STATUS 100 CONTINUE: the next Recv restarts its
// countdown from the original budget, once (spec §4.2, §8 law 4).
func (r *Request) ExtendTimeout() {
	r.mu.Lock()
	r.resetTimeout = true
	r.mu.Unlock()
	r.signal()
}

// SetStatus records the most recent STATUS payload seen for this
// request without affecting queue/complete state.
func (r *Request) SetStatus(code message.StatusCode, text string) {
	r.mu.Lock()
	r.LastStatus = code
	r.LastStatusText = text
	r.mu.Unlock()
}

// Complete reports whether STATUS 205 COMPLETE has been seen.
func (r *Request) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// Recv returns the oldest queued response payload, blocking up to
// timeout for transport input (spec §4.3 "Request.recv(timeout)").
// It returns (value, true) for a delivered payload, or (Null, false)
// once the queue is empty and the request is either complete or the
// timeout has elapsed without a CONTINUE extending it.
func (r *Request) Recv(timeout time.Duration) (message.Value, bool) {
	deadline := time.Now().Add(timeout)
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			v := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return v, true
		}
		if r.complete {
			r.mu.Unlock()
			return message.Null(), false
		}
		r.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return message.Null(), false
		}

		timer := time.NewTimer(remaining)
		select {
		case <-r.notify:
			timer.Stop()
		case <-timer.C:
		}

		r.mu.Lock()
		if r.resetTimeout {
			r.resetTimeout = false
			deadline = time.Now().Add(timeout)
		}
		r.mu.Unlock()
	}
}
