// Package net implements the transport that carries gossip messages between
// Marabu nodes.
//
// Peers exchange JSON values over plain TCP. Every value is written as one
// line: its canonical encoding followed by a newline. The NetworkTransport
// accepts inbound connections, dials outbound ones, splits the incoming byte
// stream into lines and delivers them, together with connection and
// disconnection events, on a single consumer channel. Events of one connection
// are delivered in the order they happened.
//
// The transport does not interpret the lines it carries. Decoding, the
// handshake and every protocol rule belong to the node package.
//
// To run a TCP transport, set the following configuration options (cf config
// package):
//
// - Listen: the IP:PORT of the TCP socket the node binds to.
//
// - Advertise: (optional) the address that is advertised to other nodes. If
// Listen is a local or unspecified address not reachable by other peers, it is
// useful to set Advertise to the reachable public address.
package net
