// Package httpgateway implements the CGI-style HTTP-to-bus translator
// of spec §4.7: long-polling and multipart/x-mixed-replace bridging with
// session affinity backed by a shared cache. Grounded on the teacher's
// http_transport.go for the net/http.Server + http.Flusher streaming
// shape, adapted from its SSE per-client channel fan-out to one bus
// round trip per incoming HTTP request.
package httpgateway

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/opensrf-project/opensrf-go/internal/cache"
	"github.com/opensrf-project/opensrf-go/internal/codec"
	"github.com/opensrf-project/opensrf-go/internal/domain/transport"
	"github.com/opensrf-project/opensrf-go/internal/message"
	"github.com/opensrf-project/opensrf-go/internal/obslog"
)

const (
	affinityTTL           = 300 * time.Second
	defaultReplyTimeout   = 1200 * time.Second
	staleDrainPollTimeout = time.Millisecond
)

// Gateway bridges HTTP requests onto a single bus Transport, one request
// per round trip (spec §4.7). It owns that Transport and a shared
// affinity Cache; it does not use the session engine's ClientSession,
// because completion here is judged by decoding each reply only far
// enough to find its STATUS, and replies are spliced at the byte level
// rather than decoded into application values.
type Gateway struct {
	tr         transport.Transport
	codecReg   *codec.Registry
	cacheStore cache.Cache
	routerName string
	domain     string
	log        *obslog.Logger
}

// New builds a Gateway. tr should already be connected; codecReg is used
// only to recognize message boundaries (CONNECT/DISCONNECT/terminal
// STATUS), never to reshape the bytes sent back to the HTTP client.
func New(tr transport.Transport, codecReg *codec.Registry, cacheStore cache.Cache, routerName, domain string, log *obslog.Logger) *Gateway {
	if codecReg == nil {
		codecReg = codec.NewRegistry()
		codec.RegisterOsrfClasses(codecReg)
	}
	return &Gateway{tr: tr, codecReg: codecReg, cacheStore: cacheStore, routerName: routerName, domain: domain, log: log}
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	to := r.Header.Get("X-OpenSRF-to")
	service := r.Header.Get("X-OpenSRF-service")
	thread := r.Header.Get("X-OpenSRF-thread")
	multipart := r.Header.Get("X-OpenSRF-multipart") == "true"
	xid := r.Header.Get("X-OpenSRF-xid")

	timeout := defaultReplyTimeout
	if s := r.Header.Get("X-OpenSRF-timeout"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	if (to == "") == (service == "") {
		http.Error(w, "exactly one of X-OpenSRF-to or X-OpenSRF-service is required", http.StatusBadRequest)
		return
	}

	remoteIP := clientIP(r)
	var recipient string
	if service != "" {
		recipient = g.routerName + "@" + g.domain + "/" + service
	} else {
		recipient = to
		if thread == "" {
			http.Error(w, "X-OpenSRF-thread is required with X-OpenSRF-to", http.StatusBadRequest)
			return
		}
		aff, ok := cache.GetAffinity(g.cacheStore, thread)
		if !ok || aff.RemoteIP != remoteIP || aff.JID != to {
			http.Error(w, "session affinity mismatch", http.StatusBadRequest)
			return
		}
	}
	if thread == "" {
		thread = uuid.New().String()
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}
	rawMsg := r.PostForm.Get("osrf-msg")
	if rawMsg == "" {
		http.Error(w, "missing osrf-msg field", http.StatusBadRequest)
		return
	}
	msgs, err := g.decodeBody([]byte(rawMsg))
	if err != nil {
		http.Error(w, "malformed osrf-msg", http.StatusBadRequest)
		return
	}

	g.drainStale(r.Context())

	err = g.tr.Send(r.Context(), transport.NetworkMessage{
		Recipient: recipient,
		Thread:    thread,
		Body:      []byte(rawMsg),
		OsrfXid:   xid,
	})
	if err != nil {
		http.Error(w, "no such recipient", http.StatusNotFound)
		return
	}

	onlyDisconnect := len(msgs) == 1 && msgs[0].Type == message.TypeDisconnect
	if onlyDisconnect {
		w.WriteHeader(http.StatusOK)
		return
	}
	onlyConnect := len(msgs) == 1 && msgs[0].Type == message.TypeConnect

	g.receiveLoop(w, r, recipient, thread, remoteIP, timeout, multipart, onlyConnect)
}

func (g *Gateway) receiveLoop(w http.ResponseWriter, r *http.Request, recipient, thread, remoteIP string, timeout time.Duration, multipart, onlyConnect bool) {
	boundary := uuid.New().String()
	if multipart {
		w.Header().Set("Content-Type", `multipart/x-mixed-replace; boundary="`+boundary+`"`)
	}

	flusher, _ := w.(http.Flusher)
	first := true
	var bodies [][]byte

	for {
		reply, err := g.tr.Recv(r.Context(), timeout)
		if err != nil || reply == nil {
			if !first {
				return
			}
			http.Error(w, "bus reply timeout", http.StatusGatewayTimeout)
			return
		}

		if first {
			w.Header().Set("X-OpenSRF-from", reply.Sender)
			if err := cache.PutAffinity(g.cacheStore, thread, cache.Affinity{RemoteIP: remoteIP, JID: reply.Sender}, affinityTTL); err != nil && g.log != nil {
				g.log.Warnf("httpgateway: cache affinity for thread %s: %v", thread, err)
			}
			if multipart {
				w.WriteHeader(http.StatusOK)
			}
			first = false
		}

		replyMsgs, decodeErr := g.decodeBody(reply.Body)
		terminal, timedOut := scanTerminal(replyMsgs)
		if decodeErr != nil {
			terminal = true
		}

		if timedOut {
			g.cacheStore.Delete(thread)
			if multipart {
				writeMultipartClose(w, boundary)
				flushIfPossible(flusher)
			}
			return
		}

		if multipart {
			writeMultipartChunk(w, reply.Body, boundary)
			flushIfPossible(flusher)
		} else {
			bodies = append(bodies, reply.Body)
		}

		if onlyConnect || terminal {
			break
		}
	}

	if multipart {
		writeMultipartClose(w, boundary)
		flushIfPossible(flusher)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(spliceJSONArrays(bodies))
}

func (g *Gateway) drainStale(ctx context.Context) {
	for {
		stale, err := g.tr.Recv(ctx, staleDrainPollTimeout)
		if err != nil || stale == nil {
			return
		}
	}
}

func (g *Gateway) decodeBody(body []byte) ([]message.Message, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("httpgateway: empty osrf-msg body")
	}
	if trimmed[0] == '<' {
		v, err := codec.DecodeXML(g.codecReg, trimmed)
		if err != nil {
			return nil, errors.Wrap(err, "httpgateway: decode xml osrf-msg")
		}
		return codec.ValueToMessages(v)
	}
	v, err := codec.DecodeJSON(g.codecReg, trimmed)
	if err != nil {
		return nil, errors.Wrap(err, "httpgateway: decode json osrf-msg")
	}
	return codec.ValueToMessages(v)
}

// scanTerminal reports whether msgs contains a STATUS that ends the
// exchange (anything but CONTINUE) and separately whether that status
// was a TIMEOUT, which the caller must handle by dropping the reply
// without sending a response body (spec §4.7 step 4).
func scanTerminal(msgs []message.Message) (terminal, timedOut bool) {
	for _, m := range msgs {
		if m.Type != message.TypeStatus || m.Status == nil {
			continue
		}
		switch m.Status.StatusCode {
		case message.StatusContinue:
			continue
		case message.StatusTimeout:
			return true, true
		default:
			terminal = true
		}
	}
	return terminal, false
}

func writeMultipartChunk(w http.ResponseWriter, body []byte, boundary string) {
	_, _ = w.Write([]byte("Content-type: text/plain\n\n"))
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n\n--" + boundary + "\n"))
}

func writeMultipartClose(w http.ResponseWriter, boundary string) {
	_, _ = w.Write([]byte("--" + boundary + "--\n"))
}

func flushIfPossible(f http.Flusher) {
	if f != nil {
		f.Flush()
	}
}

// spliceJSONArrays glues a sequence of JSON-array reply bodies into one
// array by stripping the accumulator's trailing `]`, the next body's
// leading `[`, and joining with a comma (spec §4.7 step 5, §8 law: F).
func spliceJSONArrays(bodies [][]byte) []byte {
	if len(bodies) == 0 {
		return []byte("[]")
	}
	acc := bytes.TrimSpace(bodies[0])
	for _, b := range bodies[1:] {
		b = bytes.TrimSpace(b)
		acc = bytes.TrimSuffix(acc, []byte("]"))
		b = bytes.TrimPrefix(b, []byte("["))
		joined := make([]byte, 0, len(acc)+1+len(b))
		joined = append(joined, acc...)
		joined = append(joined, ',')
		joined = append(joined, b...)
		acc = joined
	}
	return acc
}

// clientIP extracts the request's remote address without the port, for
// affinity comparison against a cached IP (spec §4.7, §8 law 7).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
