package chain

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBootstrap(t *testing.T) {
	store := NewInmemStore()
	c, _ := newTestChain(t, store)

	tip, height := c.Tip()
	if tip != GenesisID || height != 0 {
		t.Fatalf("expected genesis at height 0, got %s at %d", tip, height)
	}

	ok, err := store.HasObject(GenesisID)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !ok {
		t.Fatalf("genesis should be stored")
	}

	stored, err := store.GetTip()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if stored != GenesisID {
		t.Fatalf("stored tip should be genesis, got %s", stored)
	}
}

func TestReceiveGenesisIsNoop(t *testing.T) {
	c, _ := newTestChain(t, nil)

	genesis, err := ParseObject([]byte(GenesisJSON))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if receive(t, c, genesis) {
		t.Fatalf("genesis is already known and should not be announced")
	}
}

func TestBlockExtendingGenesis(t *testing.T) {
	c, _ := newTestChain(t, nil)

	b := mineBlock(t, GenesisID, genesisCreated+1, nil)
	if !receive(t, c, b) {
		t.Fatalf("new block should be announced")
	}

	height, err := c.Height(b.ID)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if height != 1 {
		t.Fatalf("height should be 1, got %d", height)
	}

	utxo, err := c.UTXO(b.ID)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(utxo) != 0 {
		t.Fatalf("utxo set should be empty, got %v", utxo.Sorted())
	}

	tip, tipHeight := c.Tip()
	if tip != b.ID || tipHeight != 1 {
		t.Fatalf("tip should be %s at 1, got %s at %d", b.ID, tip, tipHeight)
	}
}

func TestBlockProofOfWork(t *testing.T) {
	c, _ := newTestChain(t, nil)

	b := mineInvalidBlock(t, GenesisID, genesisCreated+1, nil)
	_, err := c.ReceiveObject(context.Background(), b)
	expectProtocolError(t, err, InvalidBlockPow)

	if ok, _ := c.HasObject(b.ID); ok {
		t.Fatalf("rejected block should not be stored")
	}
}

func TestBlockWithoutParent(t *testing.T) {
	c, _ := newTestChain(t, nil)

	b := mineBlock(t, "", genesisCreated+1, nil)
	_, err := c.ReceiveObject(context.Background(), b)
	expectProtocolError(t, err, InvalidGenesis)
}

func TestBlockWrongTarget(t *testing.T) {
	c, _ := newTestChain(t, nil)

	parent := GenesisID
	b := objectFrom(t, Block{
		Type:    "block",
		PrevID:  &parent,
		TxIDs:   []string{},
		Created: genesisCreated + 1,
		Target:  ProductionTarget,
		Nonce:   "0000000000000000000000000000000000000000000000000000000000000000",
	})

	// The id misses its own stated target too; the wrong target wins.
	if MeetsTarget(b.ID, ProductionTarget) {
		t.Fatalf("block id %s unexpectedly meets the production target", b.ID)
	}

	_, err := c.ReceiveObject(context.Background(), b)
	expectProtocolError(t, err, InvalidFormat)
}

func TestInterruptedBlockWrite(t *testing.T) {
	store := NewInmemStore()
	c, _ := newTestChain(t, store)

	w := newWallet(t)
	cb := newCoinbase(t, 1, w, 50)
	b := mineBlock(t, GenesisID, genesisCreated+1, []string{cb.ID})
	receive(t, c, cb)

	// Index entries left behind by a write that never reached the object.
	if err := store.PutUTXO(b.ID, NewUTXOSet()); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := store.PutHeight(b.ID, 7); err != nil {
		t.Fatalf("err: %v", err)
	}

	if !receive(t, c, b) {
		t.Fatalf("block should be accepted")
	}

	if tip, height := c.Tip(); tip != b.ID || height != 1 {
		t.Fatalf("tip should be %s at 1, got %s at %d", b.ID, tip, height)
	}

	want := NewUTXOSet(OutpointToken(cb.ID, 0))
	utxo, err := c.UTXO(b.ID)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !utxo.Equal(want) {
		t.Fatalf("utxo should be %v, got %v", want.Sorted(), utxo.Sorted())
	}

	height, err := store.GetHeight(b.ID)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if height != 1 {
		t.Fatalf("height should be 1, not %d", height)
	}
}

func TestBlockTimestamp(t *testing.T) {
	c, _ := newTestChain(t, nil)

	cases := []struct {
		name    string
		created uint64
	}{
		{"same as parent", genesisCreated},
		{"before parent", genesisCreated - 10},
		{"in the future", uint64(time.Now().Add(time.Hour).Unix())},
	}

	for _, tc := range cases {
		b := mineBlock(t, GenesisID, tc.created, nil)
		_, err := c.ReceiveObject(context.Background(), b)
		if !IsProtocolError(err, InvalidBlockTimestamp) {
			t.Fatalf("%s: expected %s, got %v", tc.name, InvalidBlockTimestamp, err)
		}
	}
}

func TestUnfindableParent(t *testing.T) {
	c, g := newTestChain(t, nil)

	orphanParent := mineBlock(t, GenesisID, genesisCreated+1, nil)
	b := mineBlock(t, orphanParent.ID, genesisCreated+2, nil)

	start := time.Now()
	_, err := c.ReceiveObject(context.Background(), b)
	expectProtocolError(t, err, UnfindableObject)

	if time.Since(start) < testConfig().AncestorTimeout {
		t.Fatalf("should have waited for the parent")
	}

	reqs := g.requests()
	if len(reqs) != 1 || reqs[0] != orphanParent.ID {
		t.Fatalf("parent should have been requested, got %v", reqs)
	}
}

func TestParentArrivesWhileWaiting(t *testing.T) {
	c, g := newTestChain(t, nil)

	parent := mineBlock(t, GenesisID, genesisCreated+1, nil)
	child := mineBlock(t, parent.ID, genesisCreated+2, nil)

	// deliver the parent as soon as it is requested, like a peer would
	g.onRequest = func(id string) {
		if id == parent.ID {
			go c.ReceiveObject(context.Background(), parent)
		}
	}

	if !receive(t, c, child) {
		t.Fatalf("child should be accepted once its parent arrives")
	}

	tip, height := c.Tip()
	if tip != child.ID || height != 2 {
		t.Fatalf("tip should be the child at 2, got %s at %d", tip, height)
	}
}

func TestUnfindableTransaction(t *testing.T) {
	c, g := newTestChain(t, nil)

	miner := newWallet(t)
	cb := newCoinbase(t, 1, miner, 10)
	b := mineBlock(t, GenesisID, genesisCreated+1, []string{cb.ID})

	_, err := c.ReceiveObject(context.Background(), b)
	expectProtocolError(t, err, UnfindableObject)

	reqs := g.requests()
	if len(reqs) != 1 || reqs[0] != cb.ID {
		t.Fatalf("coinbase should have been requested, got %v", reqs)
	}
}

func TestCoinbaseAndPayment(t *testing.T) {
	c, _ := newTestChain(t, nil)
	alice, bob := newWallet(t), newWallet(t)

	cb1 := newCoinbase(t, 1, alice, DefaultBlockReward)
	if !receive(t, c, cb1) {
		t.Fatalf("new coinbase should be announced")
	}
	if len(c.State().Mempool) != 0 {
		t.Fatalf("coinbase must never enter the mempool")
	}

	b1 := mineBlock(t, GenesisID, genesisCreated+1, []string{cb1.ID})
	receive(t, c, b1)

	utxo, _ := c.UTXO(b1.ID)
	if !utxo.Equal(NewUTXOSet(OutpointToken(cb1.ID, 0))) {
		t.Fatalf("unexpected utxo set %v", utxo.Sorted())
	}

	tx := newPayment(t,
		[]spend{{cb1.ID, 0, alice}},
		[]Output{{PubKey: bob.hex(), Value: DefaultBlockReward - 5}},
	)
	if !receive(t, c, tx) {
		t.Fatalf("valid payment should be announced")
	}

	st := c.State()
	if len(st.Mempool) != 1 || st.Mempool[0] != tx.ID {
		t.Fatalf("payment should be in the mempool, got %v", st.Mempool)
	}
	if !st.MempoolUTXO.Equal(NewUTXOSet(OutpointToken(tx.ID, 0))) {
		t.Fatalf("unexpected mempool utxo %v", st.MempoolUTXO.Sorted())
	}

	// the 5 units of fee may go to the miner
	cb2 := newCoinbase(t, 2, alice, DefaultBlockReward+5)
	receive(t, c, cb2)
	b2 := mineBlock(t, b1.ID, genesisCreated+2, []string{cb2.ID, tx.ID})
	receive(t, c, b2)

	st = c.State()
	if st.Tip != b2.ID || st.Height != 2 {
		t.Fatalf("tip should be b2 at 2, got %s at %d", st.Tip, st.Height)
	}
	if len(st.Mempool) != 0 {
		t.Fatalf("confirmed payment should leave the mempool, got %v", st.Mempool)
	}

	want := NewUTXOSet(OutpointToken(tx.ID, 0), OutpointToken(cb2.ID, 0))
	utxo, _ = c.UTXO(b2.ID)
	if !utxo.Equal(want) {
		t.Fatalf("unexpected utxo set %v", utxo.Sorted())
	}
	if !st.MempoolUTXO.Equal(want) {
		t.Fatalf("mempool utxo should equal tip utxo, got %v", st.MempoolUTXO.Sorted())
	}
}

func TestTransactionValidation(t *testing.T) {
	c, _ := newTestChain(t, nil)
	alice, bob := newWallet(t), newWallet(t)

	cb := newCoinbase(t, 1, alice, 100)
	receive(t, c, cb)

	unknown := newCoinbase(t, 7, alice, 1)

	cases := []struct {
		name string
		tx   *Object
		kind ErrorKind
	}{
		{
			"unknown outpoint",
			newPayment(t, []spend{{unknown.ID, 0, alice}}, []Output{{PubKey: bob.hex(), Value: 1}}),
			UnknownObject,
		},
		{
			"index out of range",
			newPayment(t, []spend{{cb.ID, 1, alice}}, []Output{{PubKey: bob.hex(), Value: 1}}),
			InvalidTxOutpoint,
		},
		{
			"wrong signer",
			newPayment(t, []spend{{cb.ID, 0, bob}}, []Output{{PubKey: bob.hex(), Value: 1}}),
			InvalidTxSignature,
		},
		{
			"outputs exceed inputs",
			newPayment(t, []spend{{cb.ID, 0, alice}}, []Output{{PubKey: bob.hex(), Value: 101}}),
			InvalidTxConservation,
		},
		{
			"same outpoint twice",
			newPayment(t, []spend{{cb.ID, 0, alice}, {cb.ID, 0, alice}}, []Output{{PubKey: bob.hex(), Value: 150}}),
			InvalidTxConservation,
		},
		{
			"spends a block",
			newPayment(t, []spend{{GenesisID, 0, alice}}, []Output{{PubKey: bob.hex(), Value: 1}}),
			InvalidTxOutpoint,
		},
	}

	for _, tc := range cases {
		_, err := c.ReceiveObject(context.Background(), tc.tx)
		if !IsProtocolError(err, tc.kind) {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.kind, err)
		}
		if ok, _ := c.HasObject(tc.tx.ID); ok {
			t.Fatalf("%s: invalid transaction should not be stored", tc.name)
		}
	}
}

func TestMempoolConflictIsStoredNotAdmitted(t *testing.T) {
	c, _ := newTestChain(t, nil)
	alice, bob := newWallet(t), newWallet(t)

	cb := newCoinbase(t, 1, alice, 100)
	receive(t, c, cb)
	b := mineBlock(t, GenesisID, genesisCreated+1, []string{cb.ID})
	receive(t, c, b)

	tx1 := newPayment(t, []spend{{cb.ID, 0, alice}}, []Output{{PubKey: bob.hex(), Value: 100}})
	tx2 := newPayment(t, []spend{{cb.ID, 0, alice}}, []Output{{PubKey: alice.hex(), Value: 100}})

	if !receive(t, c, tx1) {
		t.Fatalf("first spend should be admitted")
	}
	if receive(t, c, tx2) {
		t.Fatalf("conflicting spend should not be announced")
	}

	if ok, _ := c.HasObject(tx2.ID); !ok {
		t.Fatalf("conflicting spend should still be stored")
	}
	if mp := c.State().Mempool; len(mp) != 1 || mp[0] != tx1.ID {
		t.Fatalf("mempool should only hold the first spend, got %v", mp)
	}
}

func TestDoubleSpendWithinBlock(t *testing.T) {
	c, _ := newTestChain(t, nil)
	alice, bob := newWallet(t), newWallet(t)

	cb := newCoinbase(t, 1, alice, 100)
	receive(t, c, cb)
	b1 := mineBlock(t, GenesisID, genesisCreated+1, []string{cb.ID})
	receive(t, c, b1)

	tx1 := newPayment(t, []spend{{cb.ID, 0, alice}}, []Output{{PubKey: bob.hex(), Value: 100}})
	tx2 := newPayment(t, []spend{{cb.ID, 0, alice}}, []Output{{PubKey: alice.hex(), Value: 100}})
	receive(t, c, tx1)
	receive(t, c, tx2)

	b2 := mineBlock(t, b1.ID, genesisCreated+2, []string{tx1.ID, tx2.ID})
	_, err := c.ReceiveObject(context.Background(), b2)
	expectProtocolError(t, err, InvalidTxOutpoint)

	if ok, _ := c.HasObject(b2.ID); ok {
		t.Fatalf("rejected block should not be stored")
	}
	if _, err := c.UTXO(b2.ID); err == nil {
		t.Fatalf("rejected block should have no utxo set")
	}
	if tip, _ := c.Tip(); tip != b1.ID {
		t.Fatalf("tip should not move")
	}
}

func TestCoinbaseRules(t *testing.T) {
	alice, bob := newWallet(t), newWallet(t)

	t.Run("value above reward", func(t *testing.T) {
		c, _ := newTestChain(t, nil)
		cb := newCoinbase(t, 1, alice, DefaultBlockReward+1)
		receive(t, c, cb)
		b := mineBlock(t, GenesisID, genesisCreated+1, []string{cb.ID})
		_, err := c.ReceiveObject(context.Background(), b)
		expectProtocolError(t, err, InvalidBlockCoinbase)
	})

	t.Run("wrong height", func(t *testing.T) {
		c, _ := newTestChain(t, nil)
		cb := newCoinbase(t, 2, alice, 1)
		receive(t, c, cb)
		b := mineBlock(t, GenesisID, genesisCreated+1, []string{cb.ID})
		_, err := c.ReceiveObject(context.Background(), b)
		expectProtocolError(t, err, InvalidBlockCoinbase)
	})

	t.Run("not first", func(t *testing.T) {
		c, _ := newTestChain(t, nil)
		cb1 := newCoinbase(t, 1, alice, 1)
		cb2 := newCoinbase(t, 1, bob, 1)
		receive(t, c, cb1)
		receive(t, c, cb2)
		b := mineBlock(t, GenesisID, genesisCreated+1, []string{cb1.ID, cb2.ID})
		_, err := c.ReceiveObject(context.Background(), b)
		expectProtocolError(t, err, InvalidBlockCoinbase)
	})

	t.Run("spent in own block", func(t *testing.T) {
		c, _ := newTestChain(t, nil)
		cb := newCoinbase(t, 1, alice, 10)
		receive(t, c, cb)

		// the spend is valid on its own once cb is stored, it only conflicts
		// with the block that creates cb
		tx := newPayment(t, []spend{{cb.ID, 0, alice}}, []Output{{PubKey: bob.hex(), Value: 10}})
		receive(t, c, tx)

		b := mineBlock(t, GenesisID, genesisCreated+1, []string{cb.ID, tx.ID})
		_, err := c.ReceiveObject(context.Background(), b)
		expectProtocolError(t, err, InvalidBlockCoinbase)
	})

	t.Run("fees may be claimed", func(t *testing.T) {
		c, _ := newTestChain(t, nil)
		cb1 := newCoinbase(t, 1, alice, 100)
		receive(t, c, cb1)
		b1 := mineBlock(t, GenesisID, genesisCreated+1, []string{cb1.ID})
		receive(t, c, b1)

		tx := newPayment(t, []spend{{cb1.ID, 0, alice}}, []Output{{PubKey: bob.hex(), Value: 60}})
		receive(t, c, tx)

		over := newCoinbase(t, 2, alice, DefaultBlockReward+41)
		receive(t, c, over)
		bad := mineBlock(t, b1.ID, genesisCreated+2, []string{over.ID, tx.ID})
		_, err := c.ReceiveObject(context.Background(), bad)
		expectProtocolError(t, err, InvalidBlockCoinbase)

		exact := newCoinbase(t, 2, alice, DefaultBlockReward+40)
		receive(t, c, exact)
		good := mineBlock(t, b1.ID, genesisCreated+2, []string{exact.ID, tx.ID})
		if !receive(t, c, good) {
			t.Fatalf("coinbase claiming exactly reward plus fees should be accepted")
		}
	})

	t.Run("block in txids", func(t *testing.T) {
		c, _ := newTestChain(t, nil)
		b := mineBlock(t, GenesisID, genesisCreated+1, []string{GenesisID})
		_, err := c.ReceiveObject(context.Background(), b)
		expectProtocolError(t, err, InvalidFormat)
	})
}

func TestIdempotence(t *testing.T) {
	store := NewInmemStore()
	c, _ := newTestChain(t, store)
	alice, bob := newWallet(t), newWallet(t)

	cb := newCoinbase(t, 1, alice, 100)
	receive(t, c, cb)
	b := mineBlock(t, GenesisID, genesisCreated+1, []string{cb.ID})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.ReceiveObject(context.Background(), b)
			if err != nil {
				t.Errorf("err: %v", err)
				return
			}
			if ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("block should be accepted exactly once, got %d", accepted)
	}

	tx := newPayment(t, []spend{{cb.ID, 0, alice}}, []Output{{PubKey: bob.hex(), Value: 100}})
	if !receive(t, c, tx) {
		t.Fatalf("first delivery should be announced")
	}
	if receive(t, c, tx) {
		t.Fatalf("second delivery should not be announced")
	}

	st := c.State()
	if len(st.Mempool) != 1 {
		t.Fatalf("mempool should hold the transaction once, got %v", st.Mempool)
	}
	if !st.MempoolUTXO.Equal(NewUTXOSet(OutpointToken(tx.ID, 0))) {
		t.Fatalf("mempool effects applied twice: %v", st.MempoolUTXO.Sorted())
	}
}

func TestOfferTransaction(t *testing.T) {
	c, _ := newTestChain(t, nil)
	alice, bob := newWallet(t), newWallet(t)

	cb := newCoinbase(t, 1, alice, 100)
	receive(t, c, cb)
	b := mineBlock(t, GenesisID, genesisCreated+1, []string{cb.ID})
	receive(t, c, b)

	ok, err := c.OfferTransaction(cb.ID)
	if err != nil || ok {
		t.Fatalf("coinbase should never be admitted: %v %v", ok, err)
	}

	ok, err = c.OfferTransaction("00")
	if err != nil || ok {
		t.Fatalf("unknown ids are ignored: %v %v", ok, err)
	}

	tx := newPayment(t, []spend{{cb.ID, 0, alice}}, []Output{{PubKey: bob.hex(), Value: 100}})
	receive(t, c, tx)

	ok, err = c.OfferTransaction(tx.ID)
	if err != nil || ok {
		t.Fatalf("transaction already in mempool is a no-op: %v %v", ok, err)
	}
}

func TestAdoptChainTip(t *testing.T) {
	store := NewInmemStore()
	c, _ := newTestChain(t, store)

	b := mineBlock(t, GenesisID, genesisCreated+1, nil)
	receive(t, c, b)

	ok, err := c.AdoptChainTip(b.ID)
	if err != nil || ok {
		t.Fatalf("current tip should not be re-adopted: %v %v", ok, err)
	}

	// a node restarted from a store whose recorded tip lags behind
	if err := store.PutTip(GenesisID); err != nil {
		t.Fatalf("err: %v", err)
	}
	restarted, _ := newTestChain(t, store)
	if tip, _ := restarted.Tip(); tip != GenesisID {
		t.Fatalf("restarted chain should resume from genesis, got %s", tip)
	}

	ok, err = restarted.AdoptChainTip(b.ID)
	if err != nil || !ok {
		t.Fatalf("higher stored block should be adopted: %v %v", ok, err)
	}
	if tip, height := restarted.Tip(); tip != b.ID || height != 1 {
		t.Fatalf("tip should be %s at 1, got %s at %d", b.ID, tip, height)
	}

	cb := newCoinbase(t, 1, newWallet(t), 1)
	receive(t, restarted, cb)
	_, err = restarted.AdoptChainTip(cb.ID)
	expectProtocolError(t, err, InvalidFormat)
}
