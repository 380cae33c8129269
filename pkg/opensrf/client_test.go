package opensrf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensrf-project/opensrf-go/internal/domain/transport"
	"github.com/opensrf-project/opensrf-go/internal/message"
	"github.com/opensrf-project/opensrf-go/internal/oerrors"
	"github.com/opensrf-project/opensrf-go/internal/session"
)

func TestRequestRecvReturnsQueuedValues(t *testing.T) {
	inner := session.NewRequest(1, "opensrf.math.add", nil)
	inner.Push(message.Int(3))
	inner.MarkComplete()

	r := &Request{method: "opensrf.math.add", inner: inner}
	v, ok, err := r.Recv(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	got, _ := v.Int()
	assert.EqualValues(t, 3, got)

	_, ok, err = r.Recv(time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequestRecvTranslatesFailingStatusToServiceException(t *testing.T) {
	inner := session.NewRequest(1, "opensrf.math.add", nil)
	inner.SetStatus(message.StatusNotFound, "Method Not Found")
	inner.MarkComplete()

	r := &Request{method: "opensrf.math.add", inner: inner}
	_, ok, err := r.Recv(time.Second)
	assert.False(t, ok)
	var svcErr *oerrors.ServiceException
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, 404, svcErr.StatusCode)
	assert.Equal(t, "opensrf.math.add", svcErr.Method)
}

// fakeTransport is a minimal transport.Transport double: Send is a
// no-op recorder, Recv never produces anything. It only needs to
// satisfy NewClient's SetReceiveCallback wiring for this package's
// client-construction tests.
type fakeTransport struct {
	sent []transport.NetworkMessage
}

func (f *fakeTransport) Send(_ context.Context, msg transport.NetworkMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Recv(ctx context.Context, timeout time.Duration) (*transport.NetworkMessage, error) {
	return nil, nil
}

func (f *fakeTransport) SetReceiveCallback(transport.ReceiveCallback) {}

func (f *fakeTransport) Disconnect() error { return nil }

func TestClientOpenSessionIssuesRequest(t *testing.T) {
	tr := &fakeTransport{}
	c := NewClient(tr, nil, "opensrf", "localhost", nil)

	s := c.Open("math", "en-US")
	_, err := s.Request(context.Background(), "opensrf.math.add", message.Int(1), message.Int(2))
	require.NoError(t, err)

	require.Len(t, tr.sent, 1)
	assert.Equal(t, "opensrf@localhost/math", tr.sent[0].Recipient)
}
