package marabu

import (
	"fmt"
	"os"

	"github.com/marabunet/marabu/src/chain"
	cm "github.com/marabunet/marabu/src/common"
	"github.com/marabunet/marabu/src/config"
	"github.com/marabunet/marabu/src/net"
	"github.com/marabunet/marabu/src/node"
	"github.com/marabunet/marabu/src/peers"
	"github.com/marabunet/marabu/src/service"
	"github.com/sirupsen/logrus"
)

// Marabu is a struct containing the key objects of a Marabu node: the store,
// the chain, the transport, the peer book, the node and the optional HTTP
// service. It wires them together from a Config.
type Marabu struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     chain.Store
	Chain     *chain.Chain
	Gossip    *node.Gossip
	Peers     *peers.Peers
	Service   *service.Service

	logger *logrus.Entry
}

// NewMarabu is a factory method to produce a Marabu instance.
func NewMarabu(c *config.Config) *Marabu {
	engine := &Marabu{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

// Init initialises the node based on its configuration. The store is opened,
// the chain is bootstrapped to its persisted tip, and the known peers are
// dialed.
func (m *Marabu) Init() error {
	m.logger.Debug("validateConfig")
	if err := m.validateConfig(); err != nil {
		m.logger.WithError(err).Error("validateConfig")
		return err
	}

	m.logger.Debug("initStore")
	if err := m.initStore(); err != nil {
		m.logger.WithError(err).Error("initStore")
		return err
	}

	m.logger.Debug("initTransport")
	if err := m.initTransport(); err != nil {
		m.logger.WithError(err).Error("initTransport")
		return err
	}

	m.logger.Debug("initPeers")
	if err := m.initPeers(); err != nil {
		m.logger.WithError(err).Error("initPeers")
		return err
	}

	m.logger.Debug("initChain")
	if err := m.initChain(); err != nil {
		m.logger.WithError(err).Error("initChain")
		return err
	}

	m.logger.Debug("initNode")
	if err := m.initNode(); err != nil {
		m.logger.WithError(err).Error("initNode")
		return err
	}

	m.logger.Debug("initService")
	if err := m.initService(); err != nil {
		m.logger.WithError(err).Error("initService")
		return err
	}

	return nil
}

// Run starts accepting connections, the HTTP service and the node's event
// loop. It blocks until the node stops and returns the error that stopped
// it, if any. The store is closed before returning.
func (m *Marabu) Run() error {
	go m.Transport.Listen()

	if m.Service != nil {
		go m.Service.Serve()
	}

	err := m.Node.Run()

	if m.Service != nil {
		m.Service.Close()
	}

	if cerr := m.Store.Close(); cerr != nil {
		m.logger.WithError(cerr).Error("Closing store")
		if err == nil {
			err = cerr
		}
	}

	return err
}

// Shutdown stops the node, which makes Run return.
func (m *Marabu) Shutdown() {
	if m.Node != nil {
		m.Node.Shutdown()
	}
}

func (m *Marabu) validateConfig() error {
	if m.Config.DataDir == "" {
		return fmt.Errorf("no data directory")
	}

	if err := os.MkdirAll(m.Config.DataDir, 0700); err != nil {
		return err
	}

	if !cm.IsHex(m.Config.Target, 64) {
		return fmt.Errorf("target must be 64 lowercase hex characters")
	}

	if m.Config.MaxOutbound < 0 {
		return fmt.Errorf("max-outbound must not be negative")
	}

	m.logger.WithFields(logrus.Fields{
		"marabu.DataDir":     m.Config.DataDir,
		"marabu.BindAddr":    m.Config.BindAddr,
		"marabu.Advertise":   m.Config.AdvertiseAddr,
		"marabu.ServiceAddr": m.Config.ServiceAddr,
		"marabu.NoService":   m.Config.NoService,
		"marabu.Store":       m.Config.Store,
		"marabu.MaxOutbound": m.Config.MaxOutbound,
		"marabu.Target":      m.Config.Target,
		"marabu.Agent":       m.Config.Agent,
	}).Debug("Config")

	return nil
}

func (m *Marabu) initStore() error {
	if !m.Config.Store {
		m.logger.Debug("Creating InmemStore")
		m.Store = chain.NewInmemStore()
		return nil
	}

	dbPath := m.Config.DatabaseDir

	m.logger.WithField("path", dbPath).Debug("Creating BadgerStore")

	store, err := chain.NewBadgerStore(dbPath, m.logger.WithField("component", "store"))
	if err != nil {
		return err
	}

	m.Store = store

	return nil
}

func (m *Marabu) initTransport() error {
	transport, err := net.NewTCPTransport(
		m.Config.BindAddr,
		m.Config.AdvertiseAddr,
		m.Config.TCPTimeout,
		m.Config.MaxMessageSize,
		m.logger.WithField("component", "transport"),
	)
	if err != nil {
		return err
	}

	m.Transport = transport

	return nil
}

func (m *Marabu) initPeers() error {
	book, err := peers.NewPeers(peers.NewJSONPeers(m.Config.DataDir))
	if err != nil {
		return err
	}

	added, err := book.AddPeers(m.Config.BootstrapPeers...)
	if err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"known":     book.Len(),
		"bootstrap": added,
	}).Debug("Loaded peers")

	m.Peers = book

	return nil
}

func (m *Marabu) initChain() error {
	m.Gossip = node.NewGossip(
		m.Transport,
		m.Config.RequestTTL,
		m.logger.WithField("component", "gossip"),
	)

	m.Chain = chain.NewChain(
		m.Config.ChainConfig(),
		m.Store,
		m.Gossip,
		m.logger.WithField("component", "chain"),
	)

	if err := m.Chain.Bootstrap(); err != nil {
		return err
	}

	tip, height := m.Chain.Tip()
	m.logger.WithFields(logrus.Fields{
		"tip":    tip,
		"height": height,
	}).Info("Chain loaded")

	return nil
}

func (m *Marabu) initNode() error {
	m.Node = node.NewNode(
		m.Config.NodeConfig(),
		m.Chain,
		m.Gossip,
		m.Peers,
		m.Transport,
	)

	if err := m.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (m *Marabu) initService() error {
	if !m.Config.NoService && m.Config.ServiceAddr != "" {
		m.Service = service.NewService(
			m.Config.ServiceAddr,
			m.Node,
			m.logger.WithField("component", "service"),
		)
	}
	return nil
}
