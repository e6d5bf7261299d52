package node

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/marabunet/marabu/src/net"
	"github.com/sirupsen/logrus"
)

// Gossip sends object requests and announcements to peers. It implements
// chain.Gossiper. A getobject for an id that was requested within the last
// TTL is not sent again.
type Gossip struct {
	trans  net.Transport
	logger *logrus.Entry

	mu        sync.Mutex
	requested *ttlcache.Cache[string, struct{}]
	started   bool
}

// NewGossip ...
func NewGossip(trans net.Transport, ttl time.Duration, logger *logrus.Entry) *Gossip {
	return &Gossip{
		trans:  trans,
		logger: logger,
		requested: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](ttl),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

// Start runs the expiry of the request cache in the background.
func (g *Gossip) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.started {
		g.started = true
		go g.requested.Start()
	}
}

// Stop stops the background expiry.
func (g *Gossip) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started {
		g.started = false
		g.requested.Stop()
	}
}

// RequestObject asks every connected peer for an object.
func (g *Gossip) RequestObject(id string) {
	if !g.firstRequest(id) {
		return
	}

	g.logger.WithField("objectid", id).Debug("Requesting object")

	if err := g.trans.Broadcast(newGetObjectMessage(id)); err != nil {
		g.logger.WithError(err).Error("Broadcasting getobject")
	}
}

// RequestObjectFrom asks a single peer for an object.
func (g *Gossip) RequestObjectFrom(peer string, id string) {
	if !g.firstRequest(peer + "/" + id) {
		return
	}

	if err := g.trans.Send(peer, newGetObjectMessage(id)); err != nil {
		g.logger.WithFields(logrus.Fields{
			"peer":     peer,
			"objectid": id,
			"error":    err,
		}).Debug("Sending getobject")
	}
}

// AnnounceObject tells every connected peer about a newly validated object.
func (g *Gossip) AnnounceObject(id string) {
	g.logger.WithField("objectid", id).Debug("Announcing object")

	if err := g.trans.Broadcast(newIHaveObjectMessage(id)); err != nil {
		g.logger.WithError(err).Error("Broadcasting ihaveobject")
	}
}

// firstRequest records key and reports whether it was not already recorded.
func (g *Gossip) firstRequest(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.requested.Get(key) != nil {
		return false
	}
	g.requested.Set(key, struct{}{}, ttlcache.DefaultTTL)
	return true
}
