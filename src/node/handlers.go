package node

import (
	"github.com/marabunet/marabu/src/chain"
	"github.com/marabunet/marabu/src/peers"
	"github.com/sirupsen/logrus"
)

// dispatch runs the handler of a message received from a peer that completed
// the handshake. Handlers run on the event loop, except for objects, whose
// validation may wait for dependencies.
func (n *Node) dispatch(peerID string, msg message) {
	switch m := msg.(type) {
	case *GetPeersMessage:
		n.processGetPeers(peerID)
	case *PeersMessage:
		n.processPeers(peerID, m)
	case *GetObjectMessage:
		n.processGetObject(peerID, m)
	case *IHaveObjectMessage:
		n.processIHaveObject(peerID, m)
	case *ObjectMessage:
		ok := n.goFunc(func() { n.processObject(peerID, m) })
		if !ok {
			prometheusDroppedObjects.Inc()
			n.logger.WithField("peer", peerID).Warn("All workers busy, dropping object")
		}
	case *GetMempoolMessage:
		n.processGetMempool(peerID)
	case *MempoolMessage:
		n.processMempool(peerID, m)
	case *GetChainTipMessage:
		n.processGetChainTip(peerID)
	case *ChainTipMessage:
		n.processChainTip(peerID, m)
	case *ErrorMessage:
		n.logger.WithFields(logrus.Fields{
			"peer":    peerID,
			"name":    m.Name,
			"message": m.Message,
		}).Info("Peer reported an error")
	}
}

func (n *Node) processGetPeers(peerID string) {
	addrs := n.book.ToAddrSlice()
	if self := n.trans.AdvertiseAddr(); self != "" {
		_, others := peers.ExcludePeer(addrs, self)
		addrs = append([]string{self}, others...)
	}
	n.send(peerID, newPeersMessage(addrs))
}

func (n *Node) processPeers(peerID string, m *PeersMessage) {
	_, addrs := peers.ExcludePeer(m.Peers, n.trans.AdvertiseAddr())

	added, err := n.book.AddPeers(addrs...)
	if err != nil {
		n.logger.WithError(err).Error("Saving peers")
	}

	if added > 0 {
		n.logger.WithFields(logrus.Fields{
			"peer":  peerID,
			"added": added,
		}).Debug("Learned peers")
		n.connectToPeers()
	}
}

func (n *Node) processGetObject(peerID string, m *GetObjectMessage) {
	ok, err := n.chain.HasObject(m.ObjectID)
	if err != nil {
		n.fatal(err)
		return
	}
	if !ok {
		n.reportError(peerID, chain.NewProtocolError(chain.UnfindableObject,
			"object %s not found", m.ObjectID))
		return
	}

	obj, err := n.chain.GetObject(m.ObjectID)
	if err != nil {
		n.fatal(err)
		return
	}

	n.send(peerID, newObjectMessage(obj))
}

func (n *Node) processIHaveObject(peerID string, m *IHaveObjectMessage) {
	ok, err := n.chain.HasObject(m.ObjectID)
	if err != nil {
		n.fatal(err)
		return
	}
	if !ok {
		n.gossip.RequestObjectFrom(peerID, m.ObjectID)
	}
}

func (n *Node) processObject(peerID string, m *ObjectMessage) {
	obj, err := chain.NewObject(m.Object)
	if err != nil {
		n.reportError(peerID, err)
		return
	}

	logger := n.logger.WithFields(logrus.Fields{
		"peer":     peerID,
		"objectid": obj.ID,
		"kind":     obj.Kind.String(),
	})

	announce, err := n.chain.ReceiveObject(n.ctx, obj)
	if err != nil {
		if n.ctx.Err() != nil {
			logger.Debug("Shutting down, object abandoned")
			return
		}
		n.reportError(peerID, err)
		return
	}

	if announce {
		logger.Debug("Object accepted")
		n.gossip.AnnounceObject(obj.ID)
	}
}

func (n *Node) processGetMempool(peerID string) {
	n.send(peerID, newMempoolMessage(n.chain.State().Mempool))
}

func (n *Node) processMempool(peerID string, m *MempoolMessage) {
	for _, txid := range m.TxIDs {
		ok, err := n.chain.HasObject(txid)
		if err != nil {
			n.fatal(err)
			return
		}
		if !ok {
			n.gossip.RequestObjectFrom(peerID, txid)
			continue
		}

		admitted, err := n.chain.OfferTransaction(txid)
		if err != nil {
			n.reportError(peerID, err)
			return
		}
		if admitted {
			n.gossip.AnnounceObject(txid)
		}
	}
}

func (n *Node) processGetChainTip(peerID string) {
	n.send(peerID, newChainTipMessage(n.getTip()))
}

func (n *Node) processChainTip(peerID string, m *ChainTipMessage) {
	ok, err := n.chain.HasObject(m.BlockID)
	if err != nil {
		n.fatal(err)
		return
	}
	if !ok {
		n.gossip.RequestObjectFrom(peerID, m.BlockID)
		return
	}

	if _, err := n.chain.AdoptChainTip(m.BlockID); err != nil {
		n.reportError(peerID, err)
	}
}
