package net

import (
	"github.com/marabunet/marabu/src/crypto"
)

// EventType distinguishes the values delivered on a transport consumer.
type EventType int

const (
	// MessageEvent carries one line received from a peer.
	MessageEvent EventType = iota
	// ConnectEvent announces a new connection, inbound or outbound.
	ConnectEvent
	// DisconnectEvent announces that a connection was closed.
	DisconnectEvent
)

// String ...
func (e EventType) String() string {
	switch e {
	case MessageEvent:
		return "Message"
	case ConnectEvent:
		return "Connect"
	case DisconnectEvent:
		return "Disconnect"
	default:
		return "Unknown"
	}
}

// Message is a value delivered on the consumer channel of a Transport. From
// identifies the peer. Payload is only set for a MessageEvent and holds the
// received line without its terminating newline.
type Message struct {
	Type     EventType
	From     string
	Outbound bool
	Payload  []byte
}

// EncodeLine returns the canonical JSON encoding of v terminated by a newline.
func EncodeLine(v interface{}) ([]byte, error) {
	b, err := crypto.CanonicalMarshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
