package net

// Transport provides an interface for network transports to allow a node to
// exchange line-delimited JSON messages with its peers.
type Transport interface {

	// Listen starts accepting inbound connections. It blocks until the
	// transport is closed.
	Listen()

	// Consumer returns the channel on which connection events and inbound
	// messages are delivered.
	Consumer() <-chan Message

	// Connect dials address and returns the identifier of the new peer.
	Connect(address string) (string, error)

	// Send writes v as one canonical JSON line to a connected peer.
	Send(peer string, v interface{}) error

	// Broadcast sends v to every connected peer.
	Broadcast(v interface{}) error

	// Disconnect closes the connection to a peer.
	Disconnect(peer string)

	// Peers returns the identifiers of the connected peers.
	Peers() []string

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
