// Package codec implements the JSON and XML serialization surfaces of
// spec §4.1: a class-hint registry shared by both wire formats, and a
// lossless encode/decode pair over message.Value.
package codec

import "sync"

// Protocol is how a registered class's payload is laid out on the wire.
type Protocol int

const (
	// ProtocolHash encodes payload as an object keyed by the class's
	// declared keys.
	ProtocolHash Protocol = iota
	// ProtocolArray encodes payload as a positional array whose index
	// matches the declared key order.
	ProtocolArray
)

// ClassDescriptor describes one registered class (spec §3 "Registered
// Class"): a hint, its declared key order, and its wire protocol.
type ClassDescriptor struct {
	Hint     string
	Keys     []string
	Protocol Protocol
}

// Registry is the process-wide map from hint to descriptor. It is safe
// for concurrent use; per spec §9's note on replacing global mutable
// singletons, callers should hold one Registry per Runtime rather than
// reach for a package-level instance, but a process-wide default is
// provided for the common case of a single set of registered classes
// per binary.
type Registry struct {
	mu    sync.RWMutex
	byHint map[string]ClassDescriptor
}

// NewRegistry creates an empty class registry.
func NewRegistry() *Registry {
	return &Registry{byHint: make(map[string]ClassDescriptor)}
}

// Register adds or replaces a class descriptor.
func (r *Registry) Register(d ClassDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHint[d.Hint] = d
}

// Lookup returns the descriptor for hint, if registered.
func (r *Registry) Lookup(hint string) (ClassDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byHint[hint]
	return d, ok
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide default registry.
func Default() *Registry { return defaultRegistry }
