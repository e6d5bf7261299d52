package chain

import "time"

const (
	// GenesisID is the identifier of the unique block without a parent.
	GenesisID = "0000000052a0e645eca917ae1c196e0d0a4fb756747f29ef52594d68484bb5e2"

	// GenesisJSON is the canonical encoding of the genesis block.
	GenesisJSON = `{"T":"00000000abc00000000000000000000000000000000000000000000000000000","created":1671062400,"miner":"Marabu","nonce":"000000000000000000000000000000000000000000000000000000021bea03ed","note":"The New York Times 2022-12-13: Scientists Achieve Nuclear Fusion Breakthrough With Blast of 192 Lasers","previd":null,"txids":[],"type":"block"}`

	// ProductionTarget is the proof-of-work target of the main network.
	ProductionTarget = "00000000abc00000000000000000000000000000000000000000000000000000"

	// DebugTarget is an easy target used by test networks and unit tests.
	DebugTarget = "1000000000000000000000000000000000000000000000000000000000000000"
)

// Default consensus and dependency-resolution parameters.
const (
	DefaultBlockReward        uint64 = 50 * 1000000000000
	DefaultAncestorTimeout           = 4500 * time.Millisecond
	DefaultTransactionTimeout        = 350 * time.Millisecond
)

// Config holds the parameters of a Chain.
type Config struct {
	// Target is the proof-of-work target every non-genesis block must state
	// in its T field and whose id must be below it.
	Target string

	// BlockReward is the subsidy a coinbase may claim on top of the fees of
	// its block.
	BlockReward uint64

	// AncestorTimeout bounds the wait for a missing parent block.
	AncestorTimeout time.Duration

	// TransactionTimeout bounds the wait for the missing transactions of a
	// block.
	TransactionTimeout time.Duration
}

// DefaultConfig returns the main network parameters.
func DefaultConfig() Config {
	return Config{
		Target:             ProductionTarget,
		BlockReward:        DefaultBlockReward,
		AncestorTimeout:    DefaultAncestorTimeout,
		TransactionTimeout: DefaultTransactionTimeout,
	}
}
