// Package node implements the reactive component of a Marabu node.
//
// This is the part of the node that speaks the gossip protocol. It reads
// connection events and messages from the transport, enforces the handshake,
// and hands objects to the chain package for validation.
//
// Handshake
//
// Every connection starts with both sides sending a hello message carrying a
// 0.9.x protocol version, followed by getpeers, getchaintip and getmempool. A
// hello with another version is answered with an INVALID_FORMAT error and the
// connection stays open. A valid message other than hello received first, or
// a second hello, is answered with INVALID_HANDSHAKE and the connection is
// closed.
//
// Gossip
//
// Objects spread by announcement: when a node validates a new object it sends
// ihaveobject to all its peers, and peers that do not have it reply with
// getobject. When a block references a parent or transactions the node does
// not have, the chain asks every peer for them and waits a bounded time.
// Requests for the same object are suppressed for a short while.
//
// Object messages are validated on a bounded set of goroutines, because
// validating a block may wait for its dependencies. Every other message is
// handled in order on the event loop.
//
// Errors
//
// Validation failures are reported to the peer that sent the offending
// message as an error message naming the failure. A storage failure is fatal:
// the node shuts down and Run returns the error.
package node
