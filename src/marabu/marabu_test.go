package marabu

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/marabunet/marabu/src/chain"
	"github.com/marabunet/marabu/src/config"
	"github.com/marabunet/marabu/src/peers"
	"github.com/sirupsen/logrus"
)

func newTestConfig(t *testing.T) (*config.Config, func()) {
	dir, err := ioutil.TempDir("", "marabu")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.SetDataDir(dir)

	return conf, func() { os.RemoveAll(dir) }
}

func runAsync(t *testing.T, m *Marabu) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- m.Run()
	}()
	return done
}

func waitStopped(t *testing.T, done <-chan error) {
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("err: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for the node to stop")
	}
}

func TestInitInmem(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()

	engine := NewMarabu(conf)
	if err := engine.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, ok := engine.Store.(*chain.InmemStore); !ok {
		t.Fatalf("store should be an InmemStore, not %T", engine.Store)
	}

	if engine.Service != nil {
		t.Fatal("service should be disabled")
	}

	tip, height := engine.Chain.Tip()
	if tip != chain.GenesisID || height != 0 {
		t.Fatalf("tip should be genesis at height 0, got %s at %d", tip, height)
	}

	done := runAsync(t, engine)
	engine.Shutdown()
	waitStopped(t, done)
}

func TestInitBadRejected(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()

	conf.Target = "not a target"

	if err := NewMarabu(conf).Init(); err == nil {
		t.Fatal("Init should fail with a malformed target")
	}
}

func TestBadgerReopen(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()

	conf.Store = true

	engine := NewMarabu(conf)
	if err := engine.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, ok := engine.Store.(*chain.BadgerStore); !ok {
		t.Fatalf("store should be a BadgerStore, not %T", engine.Store)
	}

	done := runAsync(t, engine)
	engine.Shutdown()
	waitStopped(t, done)

	// The database lock is released on shutdown.
	conf2 := config.NewTestConfig(t, logrus.DebugLevel)
	conf2.SetDataDir(conf.DataDir)
	conf2.Store = true

	engine2 := NewMarabu(conf2)
	if err := engine2.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}

	tip, _ := engine2.Chain.Tip()
	if tip != chain.GenesisID {
		t.Fatalf("tip should be genesis, not %s", tip)
	}

	done = runAsync(t, engine2)
	engine2.Shutdown()
	waitStopped(t, done)
}

func TestBootstrapPeers(t *testing.T) {
	conf1, cleanup1 := newTestConfig(t)
	defer cleanup1()

	engine1 := NewMarabu(conf1)
	if err := engine1.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}
	done1 := runAsync(t, engine1)

	conf2, cleanup2 := newTestConfig(t)
	defer cleanup2()
	conf2.BootstrapPeers = []string{engine1.Transport.LocalAddr(), "not-an-address"}

	engine2 := NewMarabu(conf2)
	if err := engine2.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}
	done2 := runAsync(t, engine2)

	if engine2.Peers.Len() != 1 {
		t.Fatalf("the book should hold 1 address, not %d", engine2.Peers.Len())
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(engine2.Node.GetPeers()) == 0 || len(engine1.Node.GetPeers()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for the handshake")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// The bootstrap address was persisted to peers.json.
	saved, err := peers.NewJSONPeers(conf2.DataDir).Peers()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(saved) != 1 || saved[0] != engine1.Transport.LocalAddr() {
		t.Fatalf("peers.json should hold the bootstrap peer, got %v", saved)
	}

	engine2.Shutdown()
	waitStopped(t, done2)

	engine1.Shutdown()
	waitStopped(t, done1)
}
