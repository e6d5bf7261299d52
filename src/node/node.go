package node

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/marabunet/marabu/src/chain"
	"github.com/marabunet/marabu/src/net"
	"github.com/marabunet/marabu/src/peers"
	"github.com/marabunet/marabu/src/version"
	"github.com/sirupsen/logrus"
)

// peer is the node-side state of one connection.
type peer struct {
	id         string
	outbound   bool
	handshaked bool
	agent      string
	since      time.Time
}

// Node defines a Marabu node
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	chain  *chain.Chain
	gossip *Gossip
	book   *peers.Peers

	trans net.Transport
	netCh <-chan net.Message

	connsLock sync.RWMutex
	conns     map[string]*peer
	dialing   map[string]struct{}
	dialed    map[string]string // address => peer id

	ctx    context.Context
	cancel context.CancelFunc

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	fatalCh      chan error

	start time.Time
}

// NewNode is a factory method that returns a Node instance. The chain must
// have been created with gossip as its Gossiper.
func NewNode(conf *Config,
	chn *chain.Chain,
	gossip *Gossip,
	book *peers.Peers,
	trans net.Transport,
) *Node {
	initPrometheusMetrics()

	ctx, cancel := context.WithCancel(context.Background())

	node := Node{
		conf:       conf,
		logger:     conf.Logger.WithField("node", trans.AdvertiseAddr()),
		chain:      chn,
		gossip:     gossip,
		book:       book,
		trans:      trans,
		netCh:      trans.Consumer(),
		conns:      make(map[string]*peer),
		dialing:    make(map[string]struct{}),
		dialed:     make(map[string]string),
		ctx:        ctx,
		cancel:     cancel,
		shutdownCh: make(chan struct{}),
		fatalCh:    make(chan error, 1),
	}
	node.wgLimit = int32(conf.WorkerLimit)

	return &node
}

// Init starts the request cache and dials known peers.
func (n *Node) Init() error {
	n.gossip.Start()
	n.connectToPeers()
	return nil
}

// RunAsync calls Run as a separate goroutine. A fatal error is logged.
func (n *Node) RunAsync() {
	go func() {
		if err := n.Run(); err != nil {
			n.logger.WithError(err).Error("Node stopped")
		}
	}()
}

// Run processes connection events and messages until the node is shut down.
// It returns the storage error that stopped the node, if any.
func (n *Node) Run() error {
	n.start = time.Now()
	n.setState(Running)

	n.logger.WithField("tip", n.getTip()).Info("Node running")

	for {
		select {
		case m := <-n.netCh:
			n.processMessage(m)
		case err := <-n.fatalCh:
			n.logger.WithError(err).Error("Fatal error, shutting down")
			n.Shutdown()
			return err
		case <-n.shutdownCh:
			return nil
		}
	}
}

// Shutdown shuts down the node. The store is not closed here; it belongs to
// whoever created the chain.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		n.cancel()
		close(n.shutdownCh)

		n.trans.Close()

		n.waitRoutines()

		n.gossip.Stop()
	})
}

// fatal reports an error that must stop the node.
func (n *Node) fatal(err error) {
	select {
	case n.fatalCh <- err:
	default:
	}
}

/*******************************************************************************
Connections
*******************************************************************************/

func (n *Node) processMessage(m net.Message) {
	switch m.Type {
	case net.ConnectEvent:
		n.onConnect(m)
	case net.DisconnectEvent:
		n.onDisconnect(m)
	case net.MessageEvent:
		n.onMessage(m)
	}
}

func (n *Node) onConnect(m net.Message) {
	p := &peer{
		id:       m.From,
		outbound: m.Outbound,
		since:    time.Now(),
	}

	n.connsLock.Lock()
	n.conns[p.id] = p
	n.connsLock.Unlock()

	n.logger.WithFields(logrus.Fields{
		"peer":     p.id,
		"outbound": p.outbound,
	}).Debug("Peer connected")

	n.updatePeerGauge()

	n.send(p.id, newHelloMessage(n.conf.Agent, version.ProtocolVersion))
	n.send(p.id, &GetPeersMessage{Type: GetPeersType})
	n.send(p.id, &GetChainTipMessage{Type: GetChainTipType})
	n.send(p.id, &GetMempoolMessage{Type: GetMempoolType})
}

func (n *Node) onDisconnect(m net.Message) {
	n.connsLock.Lock()
	delete(n.conns, m.From)
	for addr, id := range n.dialed {
		if id == m.From {
			delete(n.dialed, addr)
		}
	}
	n.connsLock.Unlock()

	n.logger.WithField("peer", m.From).Debug("Peer disconnected")

	n.updatePeerGauge()

	if n.getState() == Running {
		n.connectToPeers()
	}
}

func (n *Node) getPeer(id string) *peer {
	n.connsLock.RLock()
	defer n.connsLock.RUnlock()
	return n.conns[id]
}

// connectToPeers dials known addresses, in random order, until MaxOutbound
// connections are open or being opened.
func (n *Node) connectToPeers() {
	self := n.trans.AdvertiseAddr()

	n.connsLock.Lock()
	defer n.connsLock.Unlock()

	need := n.conf.MaxOutbound - len(n.dialed) - len(n.dialing)
	if need <= 0 {
		return
	}

	addrs := n.book.ToAddrSlice()
	for _, i := range rand.Perm(len(addrs)) {
		if need == 0 {
			break
		}

		addr := addrs[i]
		if addr == self {
			continue
		}
		if _, ok := n.dialed[addr]; ok {
			continue
		}
		if _, ok := n.dialing[addr]; ok {
			continue
		}

		n.dialing[addr] = struct{}{}
		if !n.goFunc(func() { n.dial(addr) }) {
			delete(n.dialing, addr)
			break
		}
		need--
	}
}

func (n *Node) dial(addr string) {
	id, err := n.trans.Connect(addr)

	n.connsLock.Lock()
	delete(n.dialing, addr)
	if err == nil {
		n.dialed[addr] = id
	}
	n.connsLock.Unlock()

	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"addr":  addr,
			"error": err,
		}).Debug("Cannot connect to peer")
		return
	}

	n.logger.WithFields(logrus.Fields{
		"addr": addr,
		"peer": id,
	}).Info("Connected to peer")
}

/*******************************************************************************
Messages
*******************************************************************************/

func (n *Node) onMessage(m net.Message) {
	p := n.getPeer(m.From)
	if p == nil {
		return
	}

	msg, err := decodeMessage(m.Payload)
	if err != nil {
		n.reportError(p.id, err)
		return
	}

	prometheusMessagesReceived.WithLabelValues(msg.messageType()).Inc()

	hello, isHello := msg.(*HelloMessage)

	n.connsLock.Lock()
	handshaked := p.handshaked
	if !handshaked && isHello {
		p.handshaked = true
		p.agent = hello.Agent
	}
	n.connsLock.Unlock()

	switch {
	case !handshaked && isHello:
		n.logger.WithFields(logrus.Fields{
			"peer":    p.id,
			"version": hello.Version,
			"agent":   hello.Agent,
		}).Debug("Handshake complete")
	case !handshaked:
		n.reportError(p.id, chain.NewProtocolError(chain.InvalidHandshake,
			"received %s before hello", msg.messageType()))
	case isHello:
		n.reportError(p.id, chain.NewProtocolError(chain.InvalidHandshake,
			"received a second hello"))
	default:
		n.dispatch(p.id, msg)
	}
}

// send writes a message to a peer. Failures close the connection in the
// transport and are only logged.
func (n *Node) send(peerID string, v interface{}) {
	if err := n.trans.Send(peerID, v); err != nil {
		n.logger.WithFields(logrus.Fields{
			"peer":  peerID,
			"error": err,
		}).Debug("Cannot send message")
	}
}

// reportError sends a ProtocolError to the peer that caused it and closes the
// connection if it was a handshake violation. Any other error is fatal.
func (n *Node) reportError(peerID string, err error) {
	perr, ok := chain.AsProtocolError(err)
	if !ok {
		n.fatal(err)
		return
	}

	n.logger.WithFields(logrus.Fields{
		"peer":  peerID,
		"name":  perr.Kind,
		"error": perr.Msg,
	}).Debug("Protocol error")

	prometheusErrorsSent.WithLabelValues(string(perr.Kind)).Inc()

	n.send(peerID, newErrorMessage(perr))

	if perr.Kind == chain.InvalidHandshake {
		n.trans.Disconnect(peerID)
	}
}

/*******************************************************************************
Stats
*******************************************************************************/

func (n *Node) getTip() string {
	tip, _ := n.chain.Tip()
	return tip
}

func (n *Node) updatePeerGauge() {
	in, out := n.peerCounts()
	prometheusPeers.WithLabelValues("inbound").Set(float64(in))
	prometheusPeers.WithLabelValues("outbound").Set(float64(out))
}

func (n *Node) peerCounts() (in int, out int) {
	n.connsLock.RLock()
	defer n.connsLock.RUnlock()

	for _, p := range n.conns {
		if p.outbound {
			out++
		} else {
			in++
		}
	}
	return in, out
}

// GetState returns the state of the node.
func (n *Node) GetState() State {
	return n.getState()
}

// GetPeers returns the ids of the connected peers that completed the
// handshake.
func (n *Node) GetPeers() []string {
	n.connsLock.RLock()
	defer n.connsLock.RUnlock()

	res := []string{}
	for id, p := range n.conns {
		if p.handshaked {
			res = append(res, id)
		}
	}
	return res
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	st := n.chain.State()
	in, out := n.peerCounts()

	var uptime time.Duration
	if !n.start.IsZero() {
		uptime = time.Since(n.start)
	}

	s := map[string]string{
		"tip":             st.Tip,
		"height":          strconv.Itoa(st.Height),
		"mempool":         strconv.Itoa(len(st.Mempool)),
		"utxo":            strconv.Itoa(len(st.MempoolUTXO)),
		"inbound_peers":   strconv.Itoa(in),
		"outbound_peers":  strconv.Itoa(out),
		"handshaked":      strconv.Itoa(len(n.GetPeers())),
		"known_addresses": strconv.Itoa(n.book.Len()),
		"workers":         strconv.Itoa(n.routines()),
		"uptime":          uptime.Truncate(time.Second).String(),
		"state":           n.getState().String(),
		"agent":           n.conf.Agent,
	}
	return s
}

// GetObject returns a stored object.
func (n *Node) GetObject(id string) (*chain.Object, error) {
	return n.chain.GetObject(id)
}

// GetChainTip returns the id and height of the current tip.
func (n *Node) GetChainTip() (string, int) {
	return n.chain.Tip()
}
