package net

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxMessageSize is the longest line, in bytes, accepted from a
	// peer. A peer that sends a longer line is disconnected.
	DefaultMaxMessageSize = 1 << 20

	readBufSize  = 4096
	writeBufSize = 4096
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrUnknownPeer is returned when sending to a peer that is not
	// connected.
	ErrUnknownPeer = errors.New("unknown peer")
)

/*
NetworkTransport provides a network based transport that can be used to
communicate with Marabu nodes on remote machines. It requires an underlying
stream layer to provide a stream abstraction, which can be simple TCP, TLS, etc.

Every connection is long-lived and symmetric: once established, either side
may write at any time. Each message is one JSON value on its own line. One
goroutine per connection reads lines and pushes them to the consumer channel;
writes are serialised per connection.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	conns     map[string]*netConn
	connsLock sync.Mutex

	consumeCh chan Message

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout        time.Duration
	maxMessageSize int
}

type netConn struct {
	id       string
	outbound bool
	conn     net.Conn

	wLock sync.Mutex
	w     *bufio.Writer
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

func (n *netConn) write(line []byte, timeout time.Duration) error {
	n.wLock.Lock()
	defer n.wLock.Unlock()

	if timeout > 0 {
		n.conn.SetWriteDeadline(time.Now().Add(timeout))
	}

	if _, err := n.w.Write(line); err != nil {
		return err
	}
	return n.w.Flush()
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. The timeout is used to apply dial and write deadlines, and
// maxMessageSize bounds the length of an inbound line.
func NewNetworkTransport(
	stream StreamLayer,
	timeout time.Duration,
	maxMessageSize int,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}

	trans := &NetworkTransport{
		conns:          make(map[string]*netConn),
		consumeCh:      make(chan Message),
		logger:         logger,
		shutdownCh:     make(chan struct{}),
		stream:         stream,
		timeout:        timeout,
		maxMessageSize: maxMessageSize,
	}

	return trans
}

// Close is used to stop the network transport. It closes the listener and
// every open connection.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.connsLock.Lock()
		for _, c := range n.conns {
			c.Release()
		}
		n.connsLock.Unlock()

		n.shutdown = true
	}
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan Message {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// Peers implements the Transport interface.
func (n *NetworkTransport) Peers() []string {
	n.connsLock.Lock()
	defer n.connsLock.Unlock()

	res := make([]string, 0, len(n.conns))
	for id := range n.conns {
		res = append(res, id)
	}
	sort.Strings(res)
	return res
}

// Connect implements the Transport interface.
func (n *NetworkTransport) Connect(address string) (string, error) {
	if n.IsShutdown() {
		return "", ErrTransportShutdown
	}

	conn, err := n.stream.Dial(address, n.timeout)
	if err != nil {
		return "", err
	}

	nc := n.register(conn, true)

	n.logger.WithFields(logrus.Fields{
		"peer": nc.id,
	}).Debug("dialed connection")

	go n.handleConn(nc)

	return nc.id, nil
}

// Send implements the Transport interface.
func (n *NetworkTransport) Send(peer string, v interface{}) error {
	line, err := EncodeLine(v)
	if err != nil {
		return err
	}
	return n.sendLine(peer, line)
}

// Broadcast implements the Transport interface. Failing peers are
// disconnected and do not stop the broadcast.
func (n *NetworkTransport) Broadcast(v interface{}) error {
	line, err := EncodeLine(v)
	if err != nil {
		return err
	}

	for _, peer := range n.Peers() {
		if err := n.sendLine(peer, line); err != nil {
			n.logger.WithFields(logrus.Fields{
				"peer":  peer,
				"error": err,
			}).Debug("broadcast failed")
		}
	}

	return nil
}

// Disconnect implements the Transport interface. The reading goroutine of the
// connection notices the closed socket and emits the DisconnectEvent.
func (n *NetworkTransport) Disconnect(peer string) {
	if c := n.getConn(peer); c != nil {
		c.Release()
	}
}

func (n *NetworkTransport) sendLine(peer string, line []byte) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	c := n.getConn(peer)
	if c == nil {
		return ErrUnknownPeer
	}

	if err := c.write(line, n.timeout); err != nil {
		c.Release()
		return err
	}

	return nil
}

func (n *NetworkTransport) getConn(peer string) *netConn {
	n.connsLock.Lock()
	defer n.connsLock.Unlock()
	return n.conns[peer]
}

func (n *NetworkTransport) register(conn net.Conn, outbound bool) *netConn {
	nc := &netConn{
		id:       conn.RemoteAddr().String(),
		outbound: outbound,
		conn:     conn,
		w:        bufio.NewWriterSize(conn, writeBufSize),
	}

	n.connsLock.Lock()
	n.conns[nc.id] = nc
	n.connsLock.Unlock()

	return nc
}

func (n *NetworkTransport) unregister(nc *netConn) {
	n.connsLock.Lock()
	defer n.connsLock.Unlock()

	if cur, ok := n.conns[nc.id]; ok && cur == nc {
		delete(n.conns, nc.id)
	}
}

// deliver pushes a message to the consumer. It returns false if the transport
// was shut down first.
func (n *NetworkTransport) deliver(m Message) bool {
	select {
	case n.consumeCh <- m:
		return true
	case <-n.shutdownCh:
		return false
	}
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(n.register(conn, false))
	}
}

// handleConn is used to handle a connection for its lifespan.
func (n *NetworkTransport) handleConn(nc *netConn) {
	defer func() {
		n.unregister(nc)
		nc.Release()
		n.deliver(Message{Type: DisconnectEvent, From: nc.id, Outbound: nc.outbound})
	}()

	if !n.deliver(Message{Type: ConnectEvent, From: nc.id, Outbound: nc.outbound}) {
		return
	}

	scanner := bufio.NewScanner(nc.conn)
	scanner.Buffer(make([]byte, 0, readBufSize), n.maxMessageSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		m := Message{
			Type:     MessageEvent,
			From:     nc.id,
			Outbound: nc.outbound,
			Payload:  append([]byte(nil), line...),
		}

		if !n.deliver(m) {
			return
		}
	}

	if err := scanner.Err(); err != nil && !n.IsShutdown() {
		n.logger.WithFields(logrus.Fields{
			"peer":  nc.id,
			"error": err,
		}).Debug("connection closed")
	}
}
