// Package transport defines the bus transport contract consumed by the
// session engine, controller, worker, and HTTP translator (spec §6). The
// concrete XMPP implementation lives in internal/xmpptransport; this
// package only fixes the shape every caller programs against.
package transport

import (
	"context"
	"time"
)

// NetworkMessage is the transport envelope (spec §3). Sender is empty on
// an outbound message until the transport stamps it; Recipient is the
// JID being addressed. Body is the serialized osrfMessage array, already
// encoded by the codec layer — transport never inspects it.
type NetworkMessage struct {
	Sender        string
	Recipient     string
	Thread        string
	Body          []byte
	RouterCommand string
	RouterClass   string
	Locale        string
	OsrfXid       string
}

// ReceiveCallback is invoked for each inbound NetworkMessage. Returning
// an error does not stop delivery of subsequent messages; the transport
// implementation's delivery loop logs it.
type ReceiveCallback func(NetworkMessage) error

// Transport is the external collaborator contract (spec §6): send/recv
// NetworkMessage frames addressed by JID, with a receive callback. A
// Transport value is owned by exactly one goroutine/process at a time
// (spec §5 "Transport handle is thread-local") — there is no
// package-level singleton here; callers hold their Transport as a field
// on whatever Runtime or session owns the bus connection.
type Transport interface {
	// Send transmits msg. msg.Sender is set by the implementation from
	// the transport's own JID.
	Send(ctx context.Context, msg NetworkMessage) error

	// Recv blocks up to timeout for one inbound NetworkMessage. A zero
	// timeout blocks indefinitely (spec §4.5 "Read one inbound
	// NetworkMessage with infinite timeout"). Returns (nil, nil) on a
	// timeout with no message.
	Recv(ctx context.Context, timeout time.Duration) (*NetworkMessage, error)

	// SetReceiveCallback installs fn to be invoked for every message
	// received via an internal delivery loop, independent of Recv. Not
	// every implementation runs such a loop; callers that exclusively
	// poll via Recv may leave this unset.
	SetReceiveCallback(fn ReceiveCallback)

	// Disconnect tears down the underlying connection. Subsequent Send
	// or Recv calls return a transport error.
	Disconnect() error
}

// Factory creates Transport instances bound to a specific JID/resource,
// mirroring how the controller opens one transport for its listener JID
// and a fresh one per re-exec'd worker.
type Factory interface {
	NewTransport(ctx context.Context, resource string) (Transport, error)
}
