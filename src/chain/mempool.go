package chain

// Mempool holds the payment transactions accepted on top of the current tip,
// in acceptance order, and the UTXO set that results from applying them to
// the tip's UTXO set.
type Mempool struct {
	txids []string
	txs   map[string]*Transaction
	utxo  UTXOSet
}

// NewMempool returns an empty mempool over the UTXO set of a tip. The set is
// copied.
func NewMempool(base UTXOSet) *Mempool {
	return &Mempool{
		txs:  make(map[string]*Transaction),
		utxo: base.Clone(),
	}
}

// Contains ...
func (m *Mempool) Contains(txid string) bool {
	_, ok := m.txs[txid]
	return ok
}

// Len ...
func (m *Mempool) Len() int {
	return len(m.txids)
}

// TxIDs returns a copy of the mempool ids in acceptance order.
func (m *Mempool) TxIDs() []string {
	return append(make([]string, 0, len(m.txids)), m.txids...)
}

// UTXO returns a copy of the mempool UTXO set.
func (m *Mempool) UTXO() UTXOSet {
	return m.utxo.Clone()
}

// Admit appends tx to the mempool if it is not already there and every
// outpoint it spends is still available, then consumes its inputs and adds
// its outputs. It reports whether tx was admitted. Signatures are not checked
// here; callers only admit transactions that were verified when first stored.
func (m *Mempool) Admit(txid string, tx *Transaction) bool {
	if m.Contains(txid) {
		return false
	}

	for _, in := range tx.Inputs {
		if !m.utxo.Has(in.Outpoint.Token()) {
			return false
		}
	}

	for _, in := range tx.Inputs {
		m.utxo.Remove(in.Outpoint.Token())
	}
	m.utxo.AddOutputs(txid, tx.Outputs)

	m.txids = append(m.txids, txid)
	m.txs[txid] = tx
	return true
}

// entries returns the mempool transactions in acceptance order.
func (m *Mempool) entries() ([]string, []*Transaction) {
	txs := make([]*Transaction, len(m.txids))
	for i, id := range m.txids {
		txs[i] = m.txs[id]
	}
	return m.TxIDs(), txs
}
