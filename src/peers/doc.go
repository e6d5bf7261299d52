// Package peers manages the addresses of known Marabu nodes.
//
// A peer is identified by a network address of the form host:port, where host
// is an IP address or a DNS name and port is between 1 and 65535. Nodes learn
// addresses from their configuration and from the peers messages of other
// nodes, and hand them out in reply to getpeers.
//
// The address book is persisted in a peers.json file in the data directory,
// a plain JSON array of addresses that human operators can edit. Upon starting
// up, the node dials a bounded number of the addresses it finds there.
package peers
