package chain

// Store provides the durable namespaces of a node: validated objects keyed by
// id, the UTXO set and height of every validated block, and the current tip.
//
// Objects, UTXO sets and heights are written at most once per id. Callers are
// responsible for writing in dependency order; the store does not enforce it.
type Store interface {
	// HasObject reports whether an object with the given id was stored.
	HasObject(id string) (bool, error)

	// GetObject returns the canonical encoding of a stored object, or a
	// KeyNotFound StoreErr.
	GetObject(id string) ([]byte, error)

	// PutObject stores an object unless one with the same id is present. It
	// reports whether the object was inserted.
	PutObject(id string, value []byte) (bool, error)

	// GetUTXO returns the UTXO set as of the given block.
	GetUTXO(blockID string) (UTXOSet, error)

	// PutUTXO records the UTXO set of a block. A second write for the same
	// block returns a KeyAlreadyExists StoreErr.
	PutUTXO(blockID string, set UTXOSet) error

	// GetHeight returns the height of a block.
	GetHeight(blockID string) (int, error)

	// PutHeight records the height of a block. A second write for the same
	// block returns a KeyAlreadyExists StoreErr.
	PutHeight(blockID string, height int) error

	// PutBlock atomically records a validated block together with its UTXO
	// set and height. It reports false, writing nothing, when the block is
	// already stored. UTXO or height entries left by an interrupted earlier
	// write of the same block are overwritten.
	PutBlock(blockID string, value []byte, set UTXOSet, height int) (bool, error)

	// GetTip returns the id of the last adopted chain tip.
	GetTip() (string, error)

	// PutTip records the chain tip.
	PutTip(blockID string) error

	// Close releases the underlying resources.
	Close() error
}
