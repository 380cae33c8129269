// Package registry implements the per-process application method table
// of spec §4.4: name -> handler with arity, streaming, and atomic-twin
// semantics, plus the built-in opensrf.system.* methods. Grounded on the
// teacher's handler-interface style (internal/domain/handler/handler.go)
// generalized from MCP's Resource/Tool/Prompt handlers to a single
// method-call handler shape.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opensrf-project/opensrf-go/internal/message"
	"github.com/opensrf-project/opensrf-go/internal/session"
)

// Handler implements one application method. It streams results via
// req.Respond/RespondComplete; returning an error causes the dispatcher
// to send STATUS 500 with the fixed status text "Internal Server Error".
// The error's own text is not sent to the caller.
type Handler func(ctx context.Context, req *session.ServerRequest, params []message.Value) error

// Method is one registered application method (spec §3 "Application
// method").
type Method struct {
	APIName string
	Handler Handler
	Argc    int
	Stream  bool
	Atomic  bool
	Desc    string
}

// Registry is the process-wide method table. It implements
// session.Dispatcher.
type Registry struct {
	service string

	mu      sync.RWMutex
	methods map[string]Method
}

// New creates an empty registry for service.
func New(service string) *Registry {
	r := &Registry{service: service, methods: make(map[string]Method)}
	registerSystemMethods(r)
	return r
}

// Register adds api_name, synthesizing a buffering ".atomic" twin when
// stream is true (spec §4.4).
func (r *Registry) Register(apiName string, handler Handler, argc int, stream bool, desc string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[apiName] = Method{APIName: apiName, Handler: handler, Argc: argc, Stream: stream, Desc: desc}
	if stream {
		atomicName := apiName + ".atomic"
		r.methods[atomicName] = Method{
			APIName: atomicName,
			Handler: atomicWrapper(handler),
			Argc:    argc,
			Stream:  true,
			Atomic:  true,
			Desc:    desc,
		}
	}
}

// Lookup returns the method registered under apiName.
func (r *Registry) Lookup(apiName string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[apiName]
	return m, ok
}

// All returns every registered method, sorted by API name, for
// introspection.
func (r *Registry) All() []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Method, 0, len(r.methods))
	for _, m := range r.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].APIName < out[j].APIName })
	return out
}

// Dispatch implements session.Dispatcher: look up the method and invoke
// its handler, or reply METHOD_NOT_FOUND (spec §4.2, §4.4).
func (r *Registry) Dispatch(req *session.ServerRequest, apiName string, params []message.Value) {
	m, ok := r.Lookup(apiName)
	if !ok {
		req.RespondStatus(message.StatusNotFound)
		return
	}
	ctx := context.Background()
	if err := m.Handler(ctx, req, params); err != nil {
		req.RespondStatus(message.StatusInternal)
	}
}

// atomicWrapper buffers every value the wrapped streaming handler would
// have sent via Respond into a single array RESULT, emitted once the
// handler returns, followed by COMPLETE (spec §4.4, §8 law 6).
func atomicWrapper(h Handler) Handler {
	return func(ctx context.Context, req *session.ServerRequest, params []message.Value) error {
		buffered, drain := req.Buffered()
		if err := h(ctx, buffered, params); err != nil {
			return err
		}
		return req.RespondComplete(ctx, message.Array(drain()...))
	}
}

func registerSystemMethods(r *Registry) {
	r.Register("opensrf.system.time", func(ctx context.Context, req *session.ServerRequest, params []message.Value) error {
		return req.RespondComplete(ctx, message.Int(time.Now().Unix()))
	}, 0, false, "Returns the current epoch time in seconds.")

	r.Register("opensrf.system.echo", func(ctx context.Context, req *session.ServerRequest, params []message.Value) error {
		for _, p := range params {
			if err := req.Respond(ctx, p); err != nil {
				return err
			}
		}
		return req.RespondCompleteOnly(ctx)
	}, -1, true, "Echoes each argument back as its own RESULT.")

	r.Register("opensrf.system.introspect", func(ctx context.Context, req *session.ServerRequest, params []message.Value) error {
		prefix := ""
		if len(params) > 0 {
			if s, ok := params[0].String(); ok {
				prefix = s
			}
		}
		for _, m := range r.All() {
			if prefix != "" && !strings.HasPrefix(m.APIName, prefix) {
				continue
			}
			desc := message.Object(
				[]string{"api_name", "handler", "service", "argc", "params", "desc"},
				map[string]message.Value{
					"api_name": message.String(m.APIName),
					"handler":  message.String(fmt.Sprintf("%p", m.Handler)),
					"service":  message.String(r.service),
					"argc":     message.Int(int64(m.Argc)),
					"params":   message.Array(),
					"desc":     message.String(m.Desc),
				},
			)
			if err := req.Respond(ctx, desc); err != nil {
				return err
			}
		}
		return req.RespondCompleteOnly(ctx)
	}, -1, true, "Describes registered methods, optionally filtered by api_name prefix.")
}
