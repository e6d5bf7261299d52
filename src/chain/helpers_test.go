package chain

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marabunet/marabu/src/common"
	"github.com/marabunet/marabu/src/crypto"
	"github.com/marabunet/marabu/src/crypto/keys"
	"github.com/sirupsen/logrus"
)

const genesisCreated = 1671062400

type recordingGossiper struct {
	sync.Mutex
	requested []string
	onRequest func(id string)
}

func (g *recordingGossiper) RequestObject(id string) {
	g.Lock()
	g.requested = append(g.requested, id)
	cb := g.onRequest
	g.Unlock()
	if cb != nil {
		cb(id)
	}
}

func (g *recordingGossiper) requests() []string {
	g.Lock()
	defer g.Unlock()
	return append([]string(nil), g.requested...)
}

func testConfig() Config {
	return Config{
		Target:             DebugTarget,
		BlockReward:        DefaultBlockReward,
		AncestorTimeout:    300 * time.Millisecond,
		TransactionTimeout: 100 * time.Millisecond,
	}
}

func newTestChain(t *testing.T, store Store) (*Chain, *recordingGossiper) {
	if store == nil {
		store = NewInmemStore()
	}
	g := &recordingGossiper{}
	c := NewChain(testConfig(), store, g, common.NewTestEntry(t, logrus.DebugLevel))
	if err := c.Bootstrap(); err != nil {
		t.Fatalf("err: %v", err)
	}
	return c, g
}

type wallet struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newWallet(t *testing.T) wallet {
	pub, priv, err := keys.GenerateKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return wallet{pub: pub, priv: priv}
}

func (w wallet) hex() string {
	return keys.PublicKeyHex(w.pub)
}

func objectFrom(t *testing.T, v interface{}) *Object {
	t.Helper()
	data, err := crypto.CanonicalMarshal(v)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	obj, err := ParseObject(data)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return obj
}

func newCoinbase(t *testing.T, height uint64, to wallet, value uint64) *Object {
	return objectFrom(t, CoinbaseTransaction{
		Type:    "transaction",
		Height:  height,
		Outputs: []Output{{PubKey: to.hex(), Value: value}},
	})
}

type spend struct {
	txid  string
	index uint64
	owner wallet
}

func newPayment(t *testing.T, spends []spend, outputs []Output) *Object {
	tx := Transaction{
		Type:    "transaction",
		Inputs:  make([]Input, len(spends)),
		Outputs: outputs,
	}
	if tx.Outputs == nil {
		tx.Outputs = []Output{}
	}
	for i, s := range spends {
		tx.Inputs[i] = Input{Outpoint: Outpoint{TxID: s.txid, Index: s.index}}
	}

	msg, err := crypto.CanonicalMarshal(tx)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	for i, s := range spends {
		sig := keys.Sign(s.owner.priv, msg)
		tx.Inputs[i].Sig = &sig
	}

	return objectFrom(t, tx)
}

// mineBlock searches nonces until the block id meets the debug target.
func mineBlock(t *testing.T, parent string, created uint64, txids []string) *Object {
	return mineBlockWith(t, parent, created, txids, func(id string) bool {
		return MeetsTarget(id, DebugTarget)
	})
}

// mineInvalidBlock searches nonces until the block id misses the debug target.
func mineInvalidBlock(t *testing.T, parent string, created uint64, txids []string) *Object {
	return mineBlockWith(t, parent, created, txids, func(id string) bool {
		return !MeetsTarget(id, DebugTarget)
	})
}

func mineBlockWith(t *testing.T, parent string, created uint64, txids []string, accept func(string) bool) *Object {
	t.Helper()
	if txids == nil {
		txids = []string{}
	}
	b := Block{
		Type:    "block",
		TxIDs:   txids,
		Created: created,
		Target:  DebugTarget,
		Miner:   "test",
	}
	if parent != "" {
		b.PrevID = &parent
	}

	for n := 0; n < 10000; n++ {
		b.Nonce = fmt.Sprintf("%064x", n)
		obj := objectFrom(t, b)
		if accept(obj.ID) {
			return obj
		}
	}
	t.Fatalf("could not mine block")
	return nil
}

func receive(t *testing.T, c *Chain, obj *Object) bool {
	t.Helper()
	announce, err := c.ReceiveObject(context.Background(), obj)
	if err != nil {
		t.Fatalf("receiving %s %s: %v", obj.Kind, obj.ID, err)
	}
	return announce
}

func expectProtocolError(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if !IsProtocolError(err, kind) {
		t.Fatalf("expected %s, got %v", kind, err)
	}
}
