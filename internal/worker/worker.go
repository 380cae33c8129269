package worker

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/opensrf-project/opensrf-go/internal/domain/transport"
	"github.com/opensrf-project/opensrf-go/internal/message"
	"github.com/opensrf-project/opensrf-go/internal/obslog"
	"github.com/opensrf-project/opensrf-go/internal/session"
)

// Config tunes one worker child's lifecycle (spec §6 unix_config:
// max_requests bounds how many request cycles a child serves before
// retiring; keepalive bounds how long a CONNECTED session may sit idle
// between requests).
type Config struct {
	Service     string
	MaxRequests int
	Keepalive   time.Duration

	// ChildExit runs once, after the request-serving loop ends but
	// before Run returns, on a clean retirement (spec §4.6 "On clean
	// exit the worker runs the application child_exit hook"). Nil means
	// no hook is registered.
	ChildExit func()
}

// Worker drives one child process's data-socket loop (spec §4.6): it
// reads one NetworkMessage frame at a time from the controller, feeds it
// to a Runtime for dispatch, and reports its pid on the status socket
// after each cycle; exiting closes that socket. Grounded on the teacher's stdio_transport.go
// read-dispatch-write loop, generalized to the fixed-frame wire format
// and the CONNECTED-session keepalive extension spec §4.6.1 adds.
type Worker struct {
	rt     *session.Runtime
	cfg    Config
	log    *obslog.Logger
	dataW  io.Writer
	status io.Writer

	frames chan frameResult

	numRequests int
}

type frameResult struct {
	payload []byte
	err     error
}

// New builds a Worker around an already-wired Runtime (its Dispatcher
// should be the process's registry.Registry). dataConn carries framed
// NetworkMessage envelopes to and from the controller; statusConn is the
// pipe the worker reports its pid on after each request cycle. A single background
// goroutine owns the read side of dataConn for the Worker's lifetime so
// a keepalive timeout never leaves a second reader racing the next one.
func New(rt *session.Runtime, cfg Config, dataConn io.ReadWriter, statusConn io.Writer, log *obslog.Logger) *Worker {
	w := &Worker{
		rt:     rt,
		cfg:    cfg,
		log:    log,
		dataW:  dataConn,
		status: statusConn,
		frames: make(chan frameResult, 1),
	}
	go w.readLoop(bufio.NewReader(dataConn))
	return w
}

func (w *Worker) readLoop(r *bufio.Reader) {
	for {
		payload, err := ReadFrame(r)
		w.frames <- frameResult{payload, err}
		if err != nil {
			return
		}
	}
}

// Run services request cycles until max_requests is reached or the data
// socket closes. After each cycle it reports the worker's own pid on the
// status socket as a ready ack (spec §4.5's controller only returns a
// drone to its idle pool once the drone confirms it's free, not as soon
// as the frame write succeeds). Retirement itself isn't a separate
// message: the process exiting closes the status socket, which the
// controller reads as EOF and treats as a retire.
func (w *Worker) Run(pid int) error {
	for w.cfg.MaxRequests <= 0 || w.numRequests < w.cfg.MaxRequests {
		if err := w.serveOneCycle(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if w.log != nil {
				w.log.Warnf("worker: request cycle error: %v", err)
			}
		}
		w.numRequests++
		if err := WritePID(w.status, pid); err != nil {
			return errors.Wrap(err, "worker: report ready")
		}
	}
	if w.cfg.ChildExit != nil {
		w.cfg.ChildExit()
	}
	return nil
}

// serveOneCycle reads and dispatches inbound frames for one thread until
// the session returns to DISCONNECTED: a stateless single-request call
// completes in one HandleInbound; a CONNECT'd session keeps reading,
// bounded by the keepalive timeout, until DISCONNECT or the client goes
// quiet (spec §4.6.1).
func (w *Worker) serveOneCycle() error {
	nm, err := w.readFrame(0)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := w.rt.HandleInbound(ctx, nm, true); err != nil {
		return errors.Wrap(err, "worker: handle inbound")
	}

	thread := nm.Thread
	sess, ok := w.rt.LookupSession(thread)
	if !ok || sess.State() != session.StateConnected {
		return nil
	}

	for {
		keepalive := w.cfg.Keepalive
		if keepalive <= 0 {
			keepalive = 30 * time.Second
		}
		next, err := w.readFrame(keepalive)
		if err != nil {
			if errors.Is(err, errKeepaliveExpired) {
				if sendErr := w.rt.SendSessionStatus(ctx, sess, message.StatusTimeout); sendErr != nil && w.log != nil {
					w.log.Warnf("worker: send keepalive timeout status: %v", sendErr)
				}
			}
			sess.Cleanup()
			w.rt.RemoveSession(thread)
			if errors.Is(err, errKeepaliveExpired) {
				return nil
			}
			return err
		}
		if err := w.rt.HandleInbound(ctx, next, true); err != nil {
			sess.Cleanup()
			w.rt.RemoveSession(thread)
			return errors.Wrap(err, "worker: handle inbound")
		}
		if sess.State() != session.StateConnected {
			sess.Cleanup()
			w.rt.RemoveSession(thread)
			return nil
		}
	}
}

var errKeepaliveExpired = errors.New("worker: keepalive expired")

// readFrame waits for the next frame the background readLoop delivers,
// optionally bounded by timeout (0 means block indefinitely). A timeout
// leaves the pending frame, if any, to be picked up by the next call —
// readLoop keeps running regardless.
func (w *Worker) readFrame(timeout time.Duration) (transport.NetworkMessage, error) {
	if timeout <= 0 {
		r := <-w.frames
		if r.err != nil {
			return transport.NetworkMessage{}, r.err
		}
		return DecodeEnvelope(r.payload)
	}

	select {
	case r := <-w.frames:
		if r.err != nil {
			return transport.NetworkMessage{}, r.err
		}
		return DecodeEnvelope(r.payload)
	case <-time.After(timeout):
		return transport.NetworkMessage{}, errKeepaliveExpired
	}
}
