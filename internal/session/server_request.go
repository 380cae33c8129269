package session

import (
	"context"

	"github.com/opensrf-project/opensrf-go/internal/message"
)

// ServerRequest is the server-side handle a registered method handler
// uses to stream results back (spec §4.3 "ServerRequest.respond").
type ServerRequest struct {
	rt        *Runtime
	session   *Session
	recipient string
	request   *Request

	// respond overrides how Respond delivers a value; nil means send a
	// RESULT immediately. complete overrides how RespondCompleteOnly
	// signals completion; nil means send STATUS 205 immediately.
	// Buffered installs both as collecting/no-op overrides so the
	// wrapped handler's sends and its own completion signal don't race
	// the buffering caller's eventual single RESULT+COMPLETE.
	respond  func(ctx context.Context, value message.Value) error
	complete func(ctx context.Context) error
}

// Session returns the server session this request belongs to.
func (r *ServerRequest) Session() *Session { return r.session }

// Params returns the method's call arguments.
func (r *ServerRequest) Params() []message.Value { return r.request.Params }

// Method returns the method name being invoked.
func (r *ServerRequest) Method() string { return r.request.Method }

// Respond sends one RESULT carrying value, status code 200 (spec §4.3
// "respond(value) sends one RESULT with code 200").
func (r *ServerRequest) Respond(ctx context.Context, value message.Value) error {
	if r.respond != nil {
		return r.respond(ctx, value)
	}
	return r.rt.send(ctx, r.recipient, r.session.thread, []message.Message{
		message.NewResult(r.request.Rid, r.session.locale, value),
	})
}

// Buffered returns a ServerRequest whose Respond collects values in
// memory instead of sending them, plus a func draining what was
// collected. Used to implement the ".atomic" twin of a streaming method
// (spec §4.4, §8 law 6): the twin's handler runs against the buffered
// request, then the caller sends one array RESULT.
func (r *ServerRequest) Buffered() (*ServerRequest, func() []message.Value) {
	var values []message.Value
	clone := *r
	clone.respond = func(_ context.Context, v message.Value) error {
		values = append(values, v)
		return nil
	}
	clone.complete = func(_ context.Context) error {
		return nil
	}
	return &clone, func() []message.Value { return values }
}

// RespondComplete sends a RESULT followed by STATUS 205 COMPLETE in the
// same envelope list (spec §4.3).
func (r *ServerRequest) RespondComplete(ctx context.Context, value message.Value) error {
	return r.rt.send(ctx, r.recipient, r.session.thread, []message.Message{
		message.NewResult(r.request.Rid, r.session.locale, value),
		message.NewStatus(r.request.Rid, r.session.locale, message.StatusComplete),
	})
}

// RespondCompleteOnly sends STATUS 205 COMPLETE with no trailing RESULT,
// used to close out a streaming call that produced no further values. A
// buffered request (Buffered) no-ops here: atomicWrapper sends the
// single COMPLETE itself once it has drained the collected values, so
// the wrapped streaming handler's own completion call must not also
// reach the wire.
func (r *ServerRequest) RespondCompleteOnly(ctx context.Context) error {
	if r.complete != nil {
		return r.complete(ctx)
	}
	return r.rt.send(ctx, r.recipient, r.session.thread, []message.Message{
		message.NewStatus(r.request.Rid, r.session.locale, message.StatusComplete),
	})
}

// RespondStatus sends a bare STATUS message, used for METHOD_NOT_FOUND
// and handler-exception paths (spec §4.2, §4.3).
func (r *ServerRequest) RespondStatus(code message.StatusCode) {
	// Best-effort: status replies for error paths don't propagate a
	// send failure to the handler, mirroring the original's "drop and
	// move on" worker-supervisor error policy (spec §7).
	_ = r.rt.send(context.Background(), r.recipient, r.session.thread, []message.Message{
		message.NewStatus(r.request.Rid, r.session.locale, code),
	})
}
