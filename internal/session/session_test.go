package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensrf-project/opensrf-go/internal/codec"
	"github.com/opensrf-project/opensrf-go/internal/domain/transport"
	"github.com/opensrf-project/opensrf-go/internal/message"
	"github.com/opensrf-project/opensrf-go/internal/oerrors"
)

// fakeTransport is an in-memory transport.Transport double that hands
// every Send directly to a peer Runtime's HandleInbound, synchronously.
// It exists only for these tests; production code uses xmpptransport.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []transport.NetworkMessage
	deliver  func(transport.NetworkMessage)
	jid      string
}

func (f *fakeTransport) Send(ctx context.Context, msg transport.NetworkMessage) error {
	msg.Sender = f.jid
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.deliver != nil {
		f.deliver(msg)
	}
	return nil
}

func (f *fakeTransport) Recv(ctx context.Context, timeout time.Duration) (*transport.NetworkMessage, error) {
	return nil, nil
}

func (f *fakeTransport) SetReceiveCallback(fn transport.ReceiveCallback) {}

func (f *fakeTransport) Disconnect() error { return nil }

func newTestRegistry() *codec.Registry {
	reg := codec.NewRegistry()
	codec.RegisterOsrfClasses(reg)
	return reg
}

func TestRequestRecvReturnsQueuedValueThenNullOnComplete(t *testing.T) {
	req := NewRequest(1, "opensrf.math.add", nil)
	req.Push(message.Int(3))
	req.MarkComplete()

	v, ok := req.Recv(time.Second)
	require.True(t, ok)
	got, _ := v.Int()
	assert.EqualValues(t, 3, got)

	_, ok = req.Recv(time.Second)
	assert.False(t, ok)
	assert.True(t, req.Complete())
}

func TestRequestRecvTimesOutWhenNothingArrives(t *testing.T) {
	req := NewRequest(1, "opensrf.math.add", nil)
	start := time.Now()
	_, ok := req.Recv(50 * time.Millisecond)
	assert.False(t, ok)
	assert.WithinDuration(t, start.Add(50*time.Millisecond), time.Now(), 100*time.Millisecond)
}

func TestRequestRecvExtendedByContinue(t *testing.T) {
	req := NewRequest(1, "opensrf.math.add", nil)
	go func() {
		time.Sleep(40 * time.Millisecond)
		req.ExtendTimeout()
		time.Sleep(25 * time.Millisecond)
		req.Push(message.Int(9))
	}()

	start := time.Now()
	v, ok := req.Recv(50 * time.Millisecond)
	elapsed := time.Since(start)

	require.True(t, ok)
	got, _ := v.Int()
	assert.EqualValues(t, 9, got)
	// The CONTINUE at 40ms restores the full 50ms budget from that moment
	// (deadline 90ms); the value at 65ms arrives after the original 50ms
	// but within 2x it (spec §8 law 4).
	assert.Greater(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestScenarioA_RequestReplyThenComplete(t *testing.T) {
	serverReg := newTestRegistry()
	clientReg := newTestRegistry()

	clientTransport := &fakeTransport{jid: "client@localhost/client"}
	serverTransport := &fakeTransport{jid: "opensrf@localhost/math_drone"}

	serverRT := NewRuntime(serverTransport, serverReg, "opensrf", "localhost", nil)
	clientRT := NewRuntime(clientTransport, clientReg, "opensrf", "localhost", nil)

	dispatcher := dispatcherFunc(func(req *ServerRequest, method string, params []message.Value) {
		require.Equal(t, "opensrf.math.add", method)
		a, _ := params[0].Int()
		b, _ := params[1].Int()
		require.NoError(t, req.Respond(context.Background(), message.Int(a+b)))
		require.NoError(t, req.RespondCompleteOnly(context.Background()))
	})
	serverRT.Dispatcher = dispatcher

	// Wire the two fake transports directly to each other's inbound handler.
	clientTransport.deliver = func(msg transport.NetworkMessage) {
		require.NoError(t, serverRT.HandleInbound(context.Background(), msg, true))
	}
	serverTransport.deliver = func(msg transport.NetworkMessage) {
		require.NoError(t, clientRT.HandleInbound(context.Background(), msg, false))
	}

	client := NewClientSession(clientRT, "math", "en-US")
	req, err := client.Request(context.Background(), "opensrf.math.add", message.Int(1), message.Int(2))
	require.NoError(t, err)

	v, ok := req.Recv(time.Second)
	require.True(t, ok)
	sum, _ := v.Int()
	assert.EqualValues(t, 3, sum)

	_, ok = req.Recv(time.Second)
	assert.False(t, ok)
	assert.True(t, req.Complete())
}

type dispatcherFunc func(req *ServerRequest, method string, params []message.Value)

func (f dispatcherFunc) Dispatch(req *ServerRequest, method string, params []message.Value) {
	f(req, method, params)
}

func TestConnectTransitionsToConnected(t *testing.T) {
	serverReg := newTestRegistry()
	clientReg := newTestRegistry()

	clientTransport := &fakeTransport{jid: "client@localhost/client"}
	serverTransport := &fakeTransport{jid: "opensrf@localhost/math_drone"}

	serverRT := NewRuntime(serverTransport, serverReg, "opensrf", "localhost", nil)
	clientRT := NewRuntime(clientTransport, clientReg, "opensrf", "localhost", nil)

	clientTransport.deliver = func(msg transport.NetworkMessage) {
		require.NoError(t, serverRT.HandleInbound(context.Background(), msg, true))
	}
	serverTransport.deliver = func(msg transport.NetworkMessage) {
		require.NoError(t, clientRT.HandleInbound(context.Background(), msg, false))
	}

	client := NewClientSession(clientRT, "math", "en-US")
	require.NoError(t, client.Connect(context.Background(), time.Second))
	assert.Equal(t, StateConnected, client.State())

	require.NoError(t, client.Disconnect(context.Background()))
	assert.Equal(t, StateDisconnected, client.State())
}

// TestHooksRunAroundRequestAndDisconnect exercises the pre/post/
// disconnect extension points spec §4.2 names: PreRequest and
// PostRequest must bracket the Dispatcher call, and Disconnect must run
// before the session flips to DISCONNECTED.
func TestHooksRunAroundRequestAndDisconnect(t *testing.T) {
	serverTransport := &fakeTransport{jid: "opensrf@localhost/math_drone"}
	clientTransport := &fakeTransport{jid: "client@localhost/client"}
	serverRT := NewRuntime(serverTransport, newTestRegistry(), "opensrf", "localhost", nil)
	clientRT := NewRuntime(clientTransport, newTestRegistry(), "opensrf", "localhost", nil)

	clientTransport.deliver = func(msg transport.NetworkMessage) {
		require.NoError(t, serverRT.HandleInbound(context.Background(), msg, true))
	}
	serverTransport.deliver = func(msg transport.NetworkMessage) {
		require.NoError(t, clientRT.HandleInbound(context.Background(), msg, false))
	}

	var order []string
	serverRT.Dispatcher = dispatcherFunc(func(req *ServerRequest, method string, params []message.Value) {
		order = append(order, "dispatch")
		require.NoError(t, req.RespondCompleteOnly(context.Background()))
	})
	var disconnectedState State
	serverRT.Hooks = Hooks{
		PreRequest:  func(_ context.Context, req *ServerRequest) { order = append(order, "pre") },
		PostRequest: func(_ context.Context, req *ServerRequest) { order = append(order, "post") },
		Disconnect: func(_ context.Context, s *Session) {
			disconnectedState = s.State()
		},
	}

	client := NewClientSession(clientRT, "math", "en-US")
	require.NoError(t, client.Connect(context.Background(), time.Second))

	_, err := client.Request(context.Background(), "opensrf.math.add", message.Int(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"pre", "dispatch", "post"}, order)

	require.NoError(t, client.Disconnect(context.Background()))
	assert.Equal(t, StateConnected, disconnectedState, "the disconnect hook should see the session still CONNECTED, before it flips")
	assert.Equal(t, StateDisconnected, client.State())
}

// TestBufferedServerRequestRespondCompleteOnlyIsANoOp guards against a
// double-COMPLETE: a streaming handler's own RespondCompleteOnly call,
// run against a Buffered clone, must not reach the wire — the caller
// draining the buffer is the one who sends the real RESULT+COMPLETE.
func TestBufferedServerRequestRespondCompleteOnlyIsANoOp(t *testing.T) {
	tr := &fakeTransport{jid: "opensrf@localhost/math_drone"}
	rt := NewRuntime(tr, newTestRegistry(), "opensrf", "localhost", nil)
	s := newSession("t-1", "math", "client@localhost/app", "en-US")
	sr := &ServerRequest{rt: rt, session: s, recipient: "client@localhost/app", request: NewRequest(7, "opensrf.system.echo", nil)}

	buffered, drain := sr.Buffered()
	require.NoError(t, buffered.Respond(context.Background(), message.Int(1)))
	require.NoError(t, buffered.RespondCompleteOnly(context.Background()))

	assert.Empty(t, tr.sent, "a buffered handler's completion call must not reach the wire")

	require.NoError(t, sr.RespondComplete(context.Background(), message.Array(drain()...)))
	require.Len(t, tr.sent, 1, "exactly one RESULT+COMPLETE envelope should go out")
}

// TestConnectTimesOutAsServiceException pins spec §4.3's documented
// connect-timeout error kind: a ServiceException carrying STATUS 408,
// not the generic timeout kind reserved for local wait-expired cases.
func TestConnectTimesOutAsServiceException(t *testing.T) {
	tr := &fakeTransport{jid: "client@localhost/client"} // no deliver wired: CONNECT never gets a reply
	rt := NewRuntime(tr, newTestRegistry(), "opensrf", "localhost", nil)
	client := NewClientSession(rt, "math", "en-US")

	err := client.Connect(context.Background(), 20*time.Millisecond)
	require.Error(t, err)

	var svcErr *oerrors.ServiceException
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, int(message.StatusTimeout), svcErr.StatusCode)
}
