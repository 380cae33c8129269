package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/opensrf-project/opensrf-go/internal/message"
	"github.com/opensrf-project/opensrf-go/internal/oerrors"
)

// ClientSession is the client-side session engine of spec §4.3: it
// resolves the initial router target, assigns a thread, and issues
// requests correlated by threadTrace.
type ClientSession struct {
	*Session

	rt      *Runtime
	nextRid int32
}

// NewClientSession builds a session targeting service, registers it
// with rt's session cache, and returns it in the DISCONNECTED state.
func NewClientSession(rt *Runtime, service, locale string) *ClientSession {
	remoteID := rt.RouterName + "@" + rt.Domain + "/" + service
	s := newSession(newThread(), service, remoteID, locale)
	rt.register(s)
	return &ClientSession{Session: s, rt: rt}
}

// Request issues a method call and returns the Request tracking its
// replies (spec §4.3 "request(method, args…)"). When the session is not
// CONNECTED, remote_id is reset to the original router target first so
// stateless calls keep routing freely.
func (c *ClientSession) Request(ctx context.Context, method string, params ...message.Value) (*Request, error) {
	if c.State() != StateConnected {
		c.ResetRemoteID()
	}
	rid := int(atomic.AddInt32(&c.nextRid, 1))
	req := NewRequest(rid, method, params)
	c.AddRequest(req)

	err := c.rt.send(ctx, c.RemoteID(), c.Thread(), []message.Message{
		message.NewRequest(rid, c.Locale(), method, params),
	})
	if err != nil {
		c.RemoveRequest(rid)
		return nil, err
	}
	return req, nil
}

// Connect sends CONNECT and waits up to timeout for the session to
// reach CONNECTED (spec §4.3).
func (c *ClientSession) Connect(ctx context.Context, timeout time.Duration) error {
	c.setState(StateConnecting)
	err := c.rt.send(ctx, c.RemoteID(), c.Thread(), []message.Message{
		message.NewConnect(c.Locale()),
	})
	if err != nil {
		return err
	}
	if !c.WaitState(StateConnected, timeout) {
		return oerrors.NewServiceException(int(message.StatusTimeout), "connect timed out waiting for CONNECTED", "")
	}
	return nil
}

// Disconnect sends DISCONNECT, then unconditionally forces DISCONNECTED
// (spec §4.3 "disconnect() ... unconditionally forces state=DISCONNECTED").
func (c *ClientSession) Disconnect(ctx context.Context) error {
	err := c.rt.send(ctx, c.RemoteID(), c.Thread(), []message.Message{
		message.NewDisconnect(c.Locale()),
	})
	c.setState(StateDisconnected)
	return err
}

// Cleanup tears the session down and removes it from the runtime cache.
func (c *ClientSession) Cleanup() {
	c.Session.Cleanup()
	c.rt.RemoveSession(c.Thread())
}
