package chain

import (
	"context"
	"math/bits"
	"time"

	"github.com/marabunet/marabu/src/common"
	"github.com/sirupsen/logrus"
)

// receiveBlock validates a block in two phases. The first completes its
// prerequisites: proof-of-work, and a stored parent, fetched from peers and
// awaited if necessary. The second verifies its content against the parent's
// UTXO set, after waiting for missing transactions. Nothing is written before
// every check has passed.
func (c *Chain) receiveBlock(ctx context.Context, obj *Object) (bool, error) {
	b := obj.Block

	if obj.ID == GenesisID {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.putObject(obj)
	}

	// The stated target is checked before proof-of-work: a block claiming
	// another target is malformed whatever its id.
	if b.Target != c.conf.Target {
		return false, NewProtocolError(InvalidFormat, "block %s states target %s", obj.ID, b.Target)
	}
	if !MeetsTarget(obj.ID, b.Target) {
		return false, NewProtocolError(InvalidBlockPow, "block id %s is not below target %s", obj.ID, b.Target)
	}
	if b.PrevID == nil {
		return false, NewProtocolError(InvalidGenesis, "block %s has no parent but is not genesis", obj.ID)
	}

	exists, err := c.store.HasObject(obj.ID)
	if err != nil || exists {
		return false, err
	}

	logger := c.logger.WithFields(logrus.Fields{
		"block":  common.ShortID(obj.ID),
		"parent": common.ShortID(*b.PrevID),
	})

	parent, err := c.awaitParent(ctx, *b.PrevID, logger)
	if err != nil {
		return false, err
	}

	now := uint64(time.Now().Unix())
	if !(parent.Created < b.Created && b.Created <= now) {
		return false, NewProtocolError(InvalidBlockTimestamp,
			"block created at %d, parent at %d, now %d", b.Created, parent.Created, now)
	}

	if err := c.awaitTransactions(ctx, b.TxIDs, logger); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	exists, err = c.store.HasObject(obj.ID)
	if err != nil || exists {
		return false, err
	}

	utxo, height, err := c.applyBlock(obj)
	if err != nil {
		return false, err
	}

	inserted, err := c.store.PutBlock(obj.ID, obj.Canonical, utxo, height)
	if err != nil || !inserted {
		return false, err
	}
	c.objectStored(obj)

	logger.WithField("height", height).Info("Block accepted")

	if height > c.height {
		if err := c.adoptTip(obj.ID, height, utxo, b); err != nil {
			return false, err
		}
	}

	return true, nil
}

// awaitParent returns the parent block, asking peers for it and waiting up to
// AncestorTimeout when it is not stored yet.
func (c *Chain) awaitParent(ctx context.Context, parentID string, logger *logrus.Entry) (*Block, error) {
	ok, err := c.store.HasObject(parentID)
	if err != nil {
		return nil, err
	}

	if !ok {
		logger.Debug("Parent missing, requesting it")
		c.gossip.RequestObject(parentID)

		wctx, cancel := context.WithTimeout(ctx, c.conf.AncestorTimeout)
		ok, err = c.waitFor(wctx, parentID, c.conf.AncestorTimeout/10)
		cancel()
		if err != nil {
			return nil, err
		}
		if !ok {
			prometheusDependencyWaits.WithLabelValues("parent", "timeout").Inc()
			return nil, NewProtocolError(UnfindableObject, "parent %s could not be retrieved", parentID)
		}
		prometheusDependencyWaits.WithLabelValues("parent", "found").Inc()
	}

	parent, err := c.loadObject(parentID)
	if err != nil {
		return nil, err
	}
	if parent.Kind != BlockKind {
		return nil, NewProtocolError(InvalidFormat, "previd %s is not a block", parentID)
	}
	return parent.Block, nil
}

// awaitTransactions asks peers for every missing transaction and waits for
// them for one TransactionTimeout window.
func (c *Chain) awaitTransactions(ctx context.Context, txids []string, logger *logrus.Entry) error {
	var missing []string
	seen := make(map[string]struct{}, len(txids))
	for _, txid := range txids {
		if _, ok := seen[txid]; ok {
			continue
		}
		seen[txid] = struct{}{}

		ok, err := c.store.HasObject(txid)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, txid)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	logger.WithField("missing", len(missing)).Debug("Requesting block transactions")
	for _, txid := range missing {
		c.gossip.RequestObject(txid)
	}

	wctx, cancel := context.WithTimeout(ctx, c.conf.TransactionTimeout)
	defer cancel()

	still, err := c.waitForAll(wctx, missing, c.conf.TransactionTimeout/10)
	if err != nil {
		return err
	}
	if len(still) > 0 {
		prometheusDependencyWaits.WithLabelValues("transaction", "timeout").Inc()
		return NewProtocolError(UnfindableObject, "transaction %s could not be retrieved", still[0])
	}
	prometheusDependencyWaits.WithLabelValues("transaction", "found").Inc()

	return nil
}

// applyBlock computes the UTXO set and height of a block whose parent and
// transactions are all stored. It does not write anything.
func (c *Chain) applyBlock(obj *Object) (UTXOSet, int, error) {
	b := obj.Block
	parentID := *b.PrevID

	parentHeight, err := c.heightOf(parentID)
	if err != nil {
		return nil, 0, err
	}
	working, err := c.utxoOf(parentID)
	if err != nil {
		return nil, 0, err
	}

	var coinbase *Object
	payments := b.TxIDs
	if len(b.TxIDs) > 0 {
		first, err := c.loadObject(b.TxIDs[0])
		if err != nil {
			return nil, 0, err
		}
		if first.Kind == CoinbaseKind {
			coinbase = first
			payments = b.TxIDs[1:]
		}
	}

	var inSum, outSum, carry uint64

	for _, txid := range payments {
		tx, err := c.loadObject(txid)
		if err != nil {
			return nil, 0, err
		}

		switch tx.Kind {
		case PaymentKind:
		case CoinbaseKind:
			return nil, 0, NewProtocolError(InvalidBlockCoinbase, "coinbase %s is not the first transaction", txid)
		default:
			return nil, 0, NewProtocolError(InvalidFormat, "%s is not a transaction", txid)
		}

		for _, in := range tx.Payment.Inputs {
			if coinbase != nil && in.Outpoint.TxID == coinbase.ID {
				return nil, 0, NewProtocolError(InvalidBlockCoinbase, "transaction %s spends the coinbase of its own block", txid)
			}

			token := in.Outpoint.Token()
			if !working.Has(token) {
				return nil, 0, NewProtocolError(InvalidTxOutpoint, "transaction %s spends unavailable outpoint %s", txid, token)
			}

			prev, err := c.loadObject(in.Outpoint.TxID)
			if err != nil {
				return nil, 0, err
			}
			outputs := prev.Outputs()
			if in.Outpoint.Index >= uint64(len(outputs)) {
				return nil, 0, NewProtocolError(InvalidTxOutpoint, "transaction %s spends missing output %s", txid, token)
			}

			inSum, carry = bits.Add64(inSum, outputs[in.Outpoint.Index].Value, 0)
			if carry != 0 {
				return nil, 0, NewProtocolError(InvalidTxConservation, "block input sum overflows")
			}
			working.Remove(token)
		}

		for _, out := range tx.Payment.Outputs {
			outSum, carry = bits.Add64(outSum, out.Value, 0)
			if carry != 0 {
				return nil, 0, NewProtocolError(InvalidTxConservation, "block output sum overflows")
			}
		}
		working.AddOutputs(txid, tx.Payment.Outputs)
	}

	height := parentHeight + 1

	if coinbase != nil {
		cb := coinbase.Coinbase
		if cb.Height != uint64(height) {
			return nil, 0, NewProtocolError(InvalidBlockCoinbase, "coinbase height is %d, expected %d", cb.Height, height)
		}

		working.AddOutputs(coinbase.ID, cb.Outputs)

		// total <= reward + in - out, rearranged to stay unsigned
		total, ok := cb.Total()
		lhs, lc := bits.Add64(total, outSum, 0)
		rhs, rc := bits.Add64(c.conf.BlockReward, inSum, 0)
		if !ok || lc != 0 || (rc == 0 && lhs > rhs) {
			return nil, 0, NewProtocolError(InvalidBlockCoinbase,
				"coinbase claims %d, allowed %d plus fees", total, c.conf.BlockReward)
		}
	}

	return working, height, nil
}
