package worker

import (
	"encoding/xml"

	"github.com/pkg/errors"

	"github.com/opensrf-project/opensrf-go/internal/domain/transport"
)

// xmlEnvelope is the controller<->worker frame payload shape (spec §6
// "payload is the XML serialization of a NetworkMessage"). This is
// distinct from the bus-facing osrfMessage XML grammar in
// internal/codec/xml.go: it wraps the already-encoded body bytes rather
// than describing their contents.
type xmlEnvelope struct {
	XMLName       xml.Name `xml:"network-message"`
	Sender        string   `xml:"sender,attr,omitempty"`
	Recipient     string   `xml:"recipient,attr"`
	Thread        string   `xml:"thread,attr"`
	RouterCommand string   `xml:"router_command,attr,omitempty"`
	RouterClass   string   `xml:"router_class,attr,omitempty"`
	Locale        string   `xml:"locale,attr,omitempty"`
	OsrfXid       string   `xml:"osrf_xid,attr,omitempty"`
	Body          string   `xml:"body"`
}

// EncodeEnvelope serializes nm for one controller<->worker frame.
func EncodeEnvelope(nm transport.NetworkMessage) ([]byte, error) {
	env := xmlEnvelope{
		Sender:        nm.Sender,
		Recipient:     nm.Recipient,
		Thread:        nm.Thread,
		RouterCommand: nm.RouterCommand,
		RouterClass:   nm.RouterClass,
		Locale:        nm.Locale,
		OsrfXid:       nm.OsrfXid,
		Body:          string(nm.Body),
	}
	data, err := xml.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "worker: encode network-message envelope")
	}
	return data, nil
}

// DecodeEnvelope is the inverse of EncodeEnvelope.
func DecodeEnvelope(data []byte) (transport.NetworkMessage, error) {
	var env xmlEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return transport.NetworkMessage{}, errors.Wrap(err, "worker: decode network-message envelope")
	}
	return transport.NetworkMessage{
		Sender:        env.Sender,
		Recipient:     env.Recipient,
		Thread:        env.Thread,
		RouterCommand: env.RouterCommand,
		RouterClass:   env.RouterClass,
		Locale:        env.Locale,
		OsrfXid:       env.OsrfXid,
		Body:          []byte(env.Body),
	}, nil
}
