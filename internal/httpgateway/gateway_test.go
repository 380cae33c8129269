package httpgateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensrf-project/opensrf-go/internal/cache"
	"github.com/opensrf-project/opensrf-go/internal/codec"
	"github.com/opensrf-project/opensrf-go/internal/domain/transport"
	"github.com/opensrf-project/opensrf-go/internal/message"
)

// scriptedTransport replays a fixed sequence of replies once something
// has been sent (before that Recv reports nothing, as an idle bus would),
// recording every Send for assertions.
type scriptedTransport struct {
	sent    []transport.NetworkMessage
	replies []*transport.NetworkMessage
}

func (s *scriptedTransport) Send(_ context.Context, msg transport.NetworkMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}

func (s *scriptedTransport) Recv(_ context.Context, _ time.Duration) (*transport.NetworkMessage, error) {
	if len(s.sent) == 0 || len(s.replies) == 0 {
		return nil, nil
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return next, nil
}

func (s *scriptedTransport) SetReceiveCallback(transport.ReceiveCallback) {}

func (s *scriptedTransport) Disconnect() error { return nil }

func newTestRegistry() *codec.Registry {
	reg := codec.NewRegistry()
	codec.RegisterOsrfClasses(reg)
	return reg
}

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewInProcess(16)
	require.NoError(t, err)
	return c
}

func encodeBody(t *testing.T, reg *codec.Registry, msgs ...message.Message) []byte {
	t.Helper()
	body, err := codec.JSON(reg, codec.MessagesToValue(msgs))
	require.NoError(t, err)
	return body
}

func postForm(t *testing.T, handler http.Handler, osrfMsg string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"osrf-msg": {osrfMsg}}
	req := httptest.NewRequest(http.MethodPost, "/osrf-gateway", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.RemoteAddr = "203.0.113.5:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMissingTargetHeaderIsBadRequest(t *testing.T) {
	reg := newTestRegistry()
	g := New(&scriptedTransport{}, reg, newTestCache(t), "opensrf", "localhost", nil)

	rec := postForm(t, g, "[]", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNonMultipartSplicesTwoResultsThenCompletes(t *testing.T) {
	reg := newTestRegistry()

	resultA := encodeBody(t, reg, message.NewResult(1, "en-US", message.String("a")))
	resultB := encodeBody(t, reg, message.NewResult(1, "en-US", message.String("b")))
	status := encodeBody(t, reg, message.NewStatus(1, "en-US", message.StatusComplete))

	tr := &scriptedTransport{replies: []*transport.NetworkMessage{
		{Sender: "opensrf@localhost/math_drone", Thread: "t-1", Body: resultA},
		{Sender: "opensrf@localhost/math_drone", Thread: "t-1", Body: resultB},
		{Sender: "opensrf@localhost/math_drone", Thread: "t-1", Body: status},
	}}
	g := New(tr, reg, newTestCache(t), "opensrf", "localhost", nil)

	reqBody := string(encodeBody(t, reg, message.NewRequest(1, "en-US", "opensrf.math.add", nil)))
	rec := postForm(t, g, reqBody, map[string]string{
		"X-OpenSRF-service": "math",
		"X-OpenSRF-thread":  "t-1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "opensrf@localhost/math_drone", rec.Header().Get("X-OpenSRF-from"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "["))
	assert.True(t, strings.HasSuffix(body, "]"))
	assert.Equal(t, 0, strings.Count(body, "]["), "arrays must be spliced, not concatenated")
}

func TestAffinityMismatchRejectsRequest(t *testing.T) {
	reg := newTestRegistry()
	c := newTestCache(t)
	require.NoError(t, cache.PutAffinity(c, "t-2", cache.Affinity{RemoteIP: "198.51.100.1", JID: "opensrf@localhost/other_drone"}, time.Minute))

	g := New(&scriptedTransport{}, reg, c, "opensrf", "localhost", nil)
	reqBody := string(encodeBody(t, reg, message.NewRequest(1, "en-US", "opensrf.math.add", nil)))
	rec := postForm(t, g, reqBody, map[string]string{
		"X-OpenSRF-to":     "opensrf@localhost/other_drone",
		"X-OpenSRF-thread": "t-2",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDisconnectOnlyReturnsImmediately(t *testing.T) {
	reg := newTestRegistry()
	tr := &scriptedTransport{}
	g := New(tr, reg, newTestCache(t), "opensrf", "localhost", nil)

	reqBody := string(encodeBody(t, reg, message.NewDisconnect("en-US")))
	rec := postForm(t, g, reqBody, map[string]string{
		"X-OpenSRF-service": "math",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	require.Len(t, tr.sent, 1)
}
