// Package opensrf is the public client facade: dial a bus transport,
// open sessions against a service, issue requests, and read back
// results without touching the internal session/codec machinery
// directly. Grounded on the teacher's pkg/server facade
// (pkg/server/server.go), which wraps its internal builder/domain
// layers behind a small constructor-plus-method surface the same way.
package opensrf

import (
	"context"
	"time"

	"github.com/opensrf-project/opensrf-go/internal/codec"
	"github.com/opensrf-project/opensrf-go/internal/domain/transport"
	"github.com/opensrf-project/opensrf-go/internal/message"
	"github.com/opensrf-project/opensrf-go/internal/oerrors"
	"github.com/opensrf-project/opensrf-go/internal/obslog"
	"github.com/opensrf-project/opensrf-go/internal/session"
)

// DefaultRequestTimeout is used by Call when the caller doesn't specify
// one, mirroring session.RequestTimeout.
const DefaultRequestTimeout = session.RequestTimeout

// Client owns one bus connection and the sessions opened against it.
type Client struct {
	rt *session.Runtime
}

// NewClient wraps an already-connected Transport. The codec registry
// should have any application classes registered before the client
// starts receiving replies; RegisterOsrfClasses is applied automatically.
func NewClient(tr transport.Transport, reg *codec.Registry, routerName, domain string, log *obslog.Logger) *Client {
	if reg == nil {
		reg = codec.NewRegistry()
	}
	codec.RegisterOsrfClasses(reg)
	rt := session.NewRuntime(tr, reg, routerName, domain, log)
	tr.SetReceiveCallback(func(nm transport.NetworkMessage) error {
		return rt.HandleInbound(context.Background(), nm, false)
	})
	return &Client{rt: rt}
}

// Open starts a new session against service (spec §4.3 "client creates a
// session targeting <router>@<domain>/<service>").
func (c *Client) Open(service, locale string) *Session {
	return &Session{cs: session.NewClientSession(c.rt, service, locale)}
}

// Session is a conversation with one service, stateless until Connect is
// called.
type Session struct {
	cs *session.ClientSession
}

// Connect issues CONNECT and waits for the session to reach CONNECTED
// (spec §4.3).
func (s *Session) Connect(ctx context.Context, timeout time.Duration) error {
	return s.cs.Connect(ctx, timeout)
}

// Disconnect issues DISCONNECT (spec §4.3).
func (s *Session) Disconnect(ctx context.Context) error {
	return s.cs.Disconnect(ctx)
}

// Close tears the session down locally without notifying the service.
func (s *Session) Close() {
	s.cs.Cleanup()
}

// Request issues a method call and returns a Request for reading back
// results (spec §4.3 "request(method, args...)").
func (s *Session) Request(ctx context.Context, method string, params ...message.Value) (*Request, error) {
	req, err := s.cs.Request(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	return &Request{method: method, inner: req}, nil
}

// Call is a convenience wrapper over Request+Recv that collects every
// response up to timeout and translates a failing STATUS into a
// ServiceException, the common case for a one-shot stateless call (spec
// §4.3's typical client usage pattern).
func (s *Session) Call(ctx context.Context, method string, timeout time.Duration, params ...message.Value) ([]message.Value, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	req, err := s.Request(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	var out []message.Value
	for {
		v, ok, err := req.Recv(timeout)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// Request tracks one in-flight method call's replies.
type Request struct {
	method string
	inner  *session.Request
}

// Recv returns the next queued response. ok is false once the call
// completes with no error; err is a *oerrors.ServiceException when the
// service reported a failing status (spec §4.3, §7).
func (r *Request) Recv(timeout time.Duration) (message.Value, bool, error) {
	v, ok := r.inner.Recv(timeout)
	if ok {
		return v, true, nil
	}
	if r.inner.LastStatus != 0 && !r.inner.LastStatus.Known() {
		return message.Null(), false, oerrors.NewProtocolException(r.inner.LastStatusText)
	}
	switch r.inner.LastStatus {
	case 0, message.StatusOK, message.StatusComplete:
		return message.Null(), false, nil
	default:
		return message.Null(), false, oerrors.NewServiceException(int(r.inner.LastStatus), r.inner.LastStatusText, r.method)
	}
}

// Complete reports whether the service has sent STATUS 205 COMPLETE.
func (r *Request) Complete() bool { return r.inner.Complete() }
