package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/opensrf-project/opensrf-go/internal/codec"
	"github.com/opensrf-project/opensrf-go/internal/domain/transport"
	"github.com/opensrf-project/opensrf-go/internal/message"
	"github.com/opensrf-project/opensrf-go/internal/obslog"
	"github.com/opensrf-project/opensrf-go/internal/oerrors"
)

// Dispatcher looks up and invokes a registered application method for
// an inbound REQUEST (spec §4.2, §4.4). The application registry
// package implements this; session only depends on the interface to
// avoid an import cycle.
type Dispatcher interface {
	Dispatch(req *ServerRequest, method string, params []message.Value)
}

// Hooks holds the user-registered extension points spec §4.2 names
// around REQUEST handling and DISCONNECT: PreRequest/PostRequest run
// immediately before and after the Dispatcher is invoked, Disconnect
// runs when a client sends DISCONNECT, before the session is torn down.
// Any of the three may be nil, in which case Runtime skips it. A
// worker's child_exit hook lives on worker.Config instead, since it
// fires once per process rather than once per session.
type Hooks struct {
	PreRequest  func(ctx context.Context, req *ServerRequest)
	PostRequest func(ctx context.Context, req *ServerRequest)
	Disconnect  func(ctx context.Context, s *Session)
}

// Runtime replaces the original's global mutable singletons (session
// cache, transport handle, app registry) with one explicit value threaded
// through the process (spec §9). Each worker holds its own after re-exec,
// and each pkg/opensrf Client holds one. The controller and the HTTP
// translator use their Transport directly and hold no Runtime.
type Runtime struct {
	Transport  transport.Transport
	Codec      *codec.Registry
	Dispatcher Dispatcher
	Hooks      Hooks
	Log        *obslog.Logger

	RouterName string
	Domain     string

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRuntime builds a Runtime around an already-connected transport. The
// codec registry should already have RegisterOsrfClasses applied plus
// any application-defined classes.
func NewRuntime(tr transport.Transport, reg *codec.Registry, routerName, domain string, log *obslog.Logger) *Runtime {
	return &Runtime{
		Transport:  tr,
		Codec:      reg,
		RouterName: routerName,
		Domain:     domain,
		Log:        log,
		sessions:   make(map[string]*Session),
	}
}

func (rt *Runtime) register(s *Session) {
	rt.mu.Lock()
	rt.sessions[s.thread] = s
	rt.mu.Unlock()
}

// LookupSession finds a tracked session by thread id.
func (rt *Runtime) LookupSession(thread string) (*Session, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	s, ok := rt.sessions[thread]
	return s, ok
}

// RemoveSession drops thread from the cache (spec §5 "entries are
// removed by explicit cleanup()").
func (rt *Runtime) RemoveSession(thread string) {
	rt.mu.Lock()
	delete(rt.sessions, thread)
	rt.mu.Unlock()
}

func newThread() string {
	return uuid.New().String()
}

// send serializes msgs and transmits them to recipient on thread.
func (rt *Runtime) send(ctx context.Context, recipient, thread string, msgs []message.Message) error {
	body, err := codec.JSON(rt.Codec, codec.MessagesToValue(msgs))
	if err != nil {
		return errors.Wrap(err, "session: encode outbound body")
	}
	err = rt.Transport.Send(ctx, transport.NetworkMessage{
		Recipient: recipient,
		Thread:    thread,
		Body:      body,
	})
	if err != nil {
		return oerrors.NewTransport("session: send", err)
	}
	return nil
}

// HandleInbound implements the dispatch rules of spec §4.2 for one
// arrived NetworkMessage: locate or create the session, update
// remote_id, and process each embedded osrfMessage in order.
func (rt *Runtime) HandleInbound(ctx context.Context, nm transport.NetworkMessage, isServer bool) error {
	v, err := codec.DecodeJSON(rt.Codec, nm.Body)
	if err != nil {
		return oerrors.NewProtocol("session: decode inbound body", err)
	}
	msgs, err := codec.ValueToMessages(v)
	if err != nil {
		return oerrors.NewProtocol("session: parse inbound osrfMessage array", err)
	}

	s, ok := rt.LookupSession(nm.Thread)
	if !ok {
		if !isServer {
			// A client with no session for this thread has nothing to
			// correlate the reply to; drop it.
			return nil
		}
		s = newSession(nm.Thread, "", nm.Sender, "")
		rt.register(s)
	}
	s.setRemoteID(nm.Sender)

	for _, m := range msgs {
		if isServer {
			rt.handleServerMessage(ctx, s, nm, m)
		} else {
			rt.handleClientMessage(s, m)
		}
	}
	return nil
}

func (rt *Runtime) handleClientMessage(s *Session, m message.Message) {
	switch m.Type {
	case message.TypeResult:
		if req, ok := s.LookupRequest(m.ThreadTrace); ok {
			req.Push(m.Result.Content)
		}
	case message.TypeStatus:
		rt.handleClientStatus(s, m)
	}
}

func (rt *Runtime) handleClientStatus(s *Session, m message.Message) {
	code := m.Status.StatusCode
	switch code {
	case message.StatusOK:
		s.setState(StateConnected)
	case message.StatusComplete:
		if req, ok := s.LookupRequest(m.ThreadTrace); ok {
			req.MarkComplete()
		}
	case message.StatusContinue:
		if req, ok := s.LookupRequest(m.ThreadTrace); ok {
			req.ExtendTimeout()
		}
	case message.StatusTimeout:
		if req, ok := s.LookupRequest(m.ThreadTrace); ok {
			req.SetStatus(code, m.Status.Status)
			req.MarkComplete()
		}
		s.setState(StateDisconnected)
	case message.StatusNotFound, message.StatusInternal:
		if req, ok := s.LookupRequest(m.ThreadTrace); ok {
			req.SetStatus(code, m.Status.Status)
			req.MarkComplete()
		}
		if code == message.StatusNotFound {
			s.setState(StateDisconnected)
		}
	default:
		if !code.Known() {
			if req, ok := s.LookupRequest(m.ThreadTrace); ok {
				req.SetStatus(code, m.Status.Status)
				req.MarkComplete()
			}
			s.setState(StateDisconnected)
		}
	}
}

func (rt *Runtime) handleServerMessage(ctx context.Context, s *Session, nm transport.NetworkMessage, m message.Message) {
	switch m.Type {
	case message.TypeRequest:
		sr := &ServerRequest{
			rt:        rt,
			session:   s,
			recipient: nm.Sender,
			request:   NewRequest(m.ThreadTrace, m.Method.Method, m.Method.Params),
		}
		if rt.Dispatcher == nil {
			sr.RespondStatus(message.StatusNotFound)
			return
		}
		if rt.Hooks.PreRequest != nil {
			rt.Hooks.PreRequest(ctx, sr)
		}
		rt.Dispatcher.Dispatch(sr, m.Method.Method, m.Method.Params)
		if rt.Hooks.PostRequest != nil {
			rt.Hooks.PostRequest(ctx, sr)
		}
	case message.TypeConnect:
		s.setState(StateConnected)
		rt.send(ctx, nm.Sender, s.thread, []message.Message{
			message.NewStatus(m.ThreadTrace, s.locale, message.StatusOK),
		})
	case message.TypeDisconnect:
		if rt.Hooks.Disconnect != nil {
			rt.Hooks.Disconnect(ctx, s)
		}
		s.setState(StateDisconnected)
	}
}

// SendSessionStatus sends a bare STATUS on s's thread to its current
// remote_id, threadTrace 0 — used by the worker's keepalive loop to
// emit STATUS 408 TIMEOUT when a CONNECTED session goes quiet (spec
// §4.6.1).
func (rt *Runtime) SendSessionStatus(ctx context.Context, s *Session, code message.StatusCode) error {
	return rt.send(ctx, s.RemoteID(), s.thread, []message.Message{
		message.NewStatus(0, s.locale, code),
	})
}

// RequestTimeout is the default budget used when a caller doesn't pass
// an explicit one, mirroring common OpenSRF client defaults.
const RequestTimeout = 60 * time.Second
