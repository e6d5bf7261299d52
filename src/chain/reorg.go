package chain

import (
	"github.com/marabunet/marabu/src/common"
	"github.com/sirupsen/logrus"
)

// adoptTip makes blockID the tip and rebuilds the mempool on top of its UTXO
// set. When the new tip does not extend the old one, payment transactions of
// the abandoned branch are offered first, oldest block first. The previous
// mempool is offered last, in acceptance order. Must be called with c.mu held.
func (c *Chain) adoptTip(blockID string, height int, utxo UTXOSet, block *Block) error {
	previous := c.mempool
	oldTip := c.tip

	c.mempool = NewMempool(utxo)

	logger := c.logger.WithFields(logrus.Fields{
		"tip":     common.ShortID(blockID),
		"height":  height,
		"old_tip": common.ShortID(oldTip),
	})

	if block.Parent() != oldTip {
		abandoned, err := c.abandonedBlocks(block, oldTip)
		if err != nil {
			return err
		}

		replayed := 0
		for _, ab := range abandoned {
			for _, txid := range ab.TxIDs {
				obj, err := c.loadObject(txid)
				if err != nil {
					return err
				}
				if obj.Kind == PaymentKind && c.mempool.Admit(txid, obj.Payment) {
					replayed++
				}
			}
		}

		prometheusChainReorgs.Inc()
		logger.WithFields(logrus.Fields{
			"abandoned": len(abandoned),
			"replayed":  replayed,
		}).Info("Chain reorganisation")
	}

	ids, txs := previous.entries()
	for i := range ids {
		c.mempool.Admit(ids[i], txs[i])
	}

	c.tip = blockID
	c.height = height

	if err := c.store.PutTip(blockID); err != nil {
		return err
	}

	prometheusChainTipHeight.Set(float64(height))
	prometheusMempoolSize.Set(float64(c.mempool.Len()))

	logger.WithField("mempool", c.mempool.Len()).Info("New chain tip")

	return nil
}

// abandonedBlocks returns the blocks between oldTip and the fork point with
// the chain ending at block, oldest first. Both walks are iterative over
// parent links.
func (c *Chain) abandonedBlocks(block *Block, oldTip string) ([]*Block, error) {
	ancestors := make(map[string]struct{})
	for id := block.Parent(); id != ""; {
		ancestors[id] = struct{}{}
		if id == GenesisID {
			break
		}
		obj, err := c.loadObject(id)
		if err != nil {
			return nil, err
		}
		id = obj.Block.Parent()
	}

	var abandoned []*Block
	for id := oldTip; id != ""; {
		if _, ok := ancestors[id]; ok {
			break
		}
		obj, err := c.loadObject(id)
		if err != nil {
			return nil, err
		}
		abandoned = append(abandoned, obj.Block)
		id = obj.Block.Parent()
	}

	for i, j := 0, len(abandoned)-1; i < j; i, j = i+1, j-1 {
		abandoned[i], abandoned[j] = abandoned[j], abandoned[i]
	}

	return abandoned, nil
}
