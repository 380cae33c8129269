package worker

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensrf-project/opensrf-go/internal/codec"
	"github.com/opensrf-project/opensrf-go/internal/domain/transport"
	"github.com/opensrf-project/opensrf-go/internal/message"
	"github.com/opensrf-project/opensrf-go/internal/session"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	payload, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)
}

func TestPIDRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePID(&buf, 4242))
	pid, err := ReadPID(&buf)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	nm := transport.NetworkMessage{
		Sender:    "router@localhost/router",
		Recipient: "opensrf.math@localhost/drone",
		Thread:    "abc-123",
		Body:      []byte(`[{"k":"v"}]`),
		OsrfXid:   "xid-1",
	}
	data, err := EncodeEnvelope(nm)
	require.NoError(t, err)

	out, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, nm, out)
}

// readWriter wires one side of an in-memory duplex pipe into a single
// io.ReadWriter, the shape Worker's data socket expects.
type readWriter struct {
	r io.Reader
	w io.Writer
}

func (rw readWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw readWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }

// newDuplexPipe returns both ends of an in-memory socket pair, standing
// in for the controller<->worker data socket (spec §4.5/§4.6).
func newDuplexPipe() (controller, worker readWriter) {
	toWorkerR, toWorkerW := io.Pipe()
	toControllerR, toControllerW := io.Pipe()
	return readWriter{r: toControllerR, w: toWorkerW}, readWriter{r: toWorkerR, w: toControllerW}
}

// nopTransport accepts every Send and never delivers anything, so a
// handler's responses have somewhere to go.
type nopTransport struct{}

func (nopTransport) Send(context.Context, transport.NetworkMessage) error { return nil }
func (nopTransport) Recv(context.Context, time.Duration) (*transport.NetworkMessage, error) {
	return nil, nil
}
func (nopTransport) SetReceiveCallback(transport.ReceiveCallback) {}
func (nopTransport) Disconnect() error                            { return nil }

func newTestRuntime() *session.Runtime {
	reg := codec.NewRegistry()
	codec.RegisterOsrfClasses(reg)
	return session.NewRuntime(nopTransport{}, reg, "router", "localhost", nil)
}

type dispatcherFunc func(req *session.ServerRequest, method string, params []message.Value)

func (f dispatcherFunc) Dispatch(req *session.ServerRequest, method string, params []message.Value) {
	f(req, method, params)
}

func TestWorkerServesOneStatelessCycleThenReportsPID(t *testing.T) {
	ctrl, workerSide := newDuplexPipe()

	rt := newTestRuntime()
	rt.Dispatcher = dispatcherFunc(func(req *session.ServerRequest, method string, params []message.Value) {
		require.NoError(t, req.RespondComplete(context.Background(), message.String("ok")))
	})

	var status bytes.Buffer
	w := New(rt, Config{MaxRequests: 1}, workerSide, &status, nil)

	body, err := codec.JSON(rt.Codec, codec.MessagesToValue([]message.Message{
		message.NewRequest(1, "", "opensrf.math.add", nil),
	}))
	require.NoError(t, err)

	nm := transport.NetworkMessage{
		Sender:    "client@localhost/app",
		Recipient: "opensrf.math@localhost/drone",
		Thread:    "t-1",
		Body:      body,
	}
	payload, err := EncodeEnvelope(nm)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(999) }()

	require.NoError(t, WriteFrame(ctrl, payload))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not retire after max_requests")
	}

	pid, err := ReadPID(&status)
	require.NoError(t, err)
	assert.Equal(t, 999, pid)
}
