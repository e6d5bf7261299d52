package peers

import (
	"io/ioutil"
	"os"
	"reflect"
	"testing"
)

func TestParseAddress(t *testing.T) {
	cases := []struct {
		in   string
		out  string
		fail bool
	}{
		{in: "127.0.0.1:18018", out: "127.0.0.1:18018"},
		{in: "node.example.org:18018", out: "node.example.org:18018"},
		{in: "[::1]:18018", out: "[::1]:18018"},
		{in: "localhost:1", out: "localhost:1"},
		{in: "127.0.0.1", fail: true},
		{in: "127.0.0.1:0", fail: true},
		{in: "127.0.0.1:65536", fail: true},
		{in: "127.0.0.1:port", fail: true},
		{in: "0.0.0.0:18018", fail: true},
		{in: ":18018", fail: true},
		{in: "bad_host:18018", fail: true},
		{in: "-bad.example:18018", fail: true},
		{in: "", fail: true},
	}

	for _, tc := range cases {
		out, err := ParseAddress(tc.in)
		if tc.fail {
			if err == nil {
				t.Fatalf("%q should be rejected, got %q", tc.in, out)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: err: %v", tc.in, err)
		}
		if out != tc.out {
			t.Fatalf("%q should normalise to %q, got %q", tc.in, tc.out, out)
		}
	}
}

func TestPeersAdd(t *testing.T) {
	store := &StaticPeers{StaticPeers: []string{"10.0.0.2:18018", "garbage", "10.0.0.1:18018"}}

	p, err := NewPeers(store)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !reflect.DeepEqual(p.ToAddrSlice(), []string{"10.0.0.1:18018", "10.0.0.2:18018"}) {
		t.Fatalf("unexpected peers %v", p.ToAddrSlice())
	}

	added, err := p.AddPeers("10.0.0.1:18018", "10.0.0.3:18018", "10.0.0.3:18018", "nope:0")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if added != 1 {
		t.Fatalf("one address should be added, not %d", added)
	}

	stored, _ := store.Peers()
	if !reflect.DeepEqual(stored, p.ToAddrSlice()) {
		t.Fatalf("store should hold %v, not %v", p.ToAddrSlice(), stored)
	}

	if err := p.RemovePeer("10.0.0.2:18018"); err != nil {
		t.Fatalf("err: %v", err)
	}
	if p.Has("10.0.0.2:18018") || p.Len() != 2 {
		t.Fatalf("10.0.0.2:18018 should be removed, got %v", p.ToAddrSlice())
	}
}

func TestJSONPeers(t *testing.T) {
	// Create a test dir
	dir, err := ioutil.TempDir("", "marabu")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	// Create the store
	store := NewJSONPeers(dir)

	// Try a read, should get nothing
	addrs, err := store.Peers()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(addrs) != 0 {
		t.Fatalf("addrs: %v", addrs)
	}

	p, err := NewPeers(store)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := p.AddPeers("10.0.0.1:18018", "node.example.org:18018", "10.0.0.2:18018"); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Reload from disk, should find 3 peers
	reloaded, err := NewPeers(NewJSONPeers(dir))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reloaded.Len() != 3 {
		t.Fatalf("peers: %v", reloaded.ToAddrSlice())
	}
	if !reflect.DeepEqual(reloaded.ToAddrSlice(), p.ToAddrSlice()) {
		t.Fatalf("reloaded peers should be %v, not %v", p.ToAddrSlice(), reloaded.ToAddrSlice())
	}
}

func TestExcludePeer(t *testing.T) {
	index, others := ExcludePeer([]string{"a:1", "b:2", "c:3"}, "b:2")
	if index != 1 {
		t.Fatalf("index should be 1, not %d", index)
	}
	if !reflect.DeepEqual(others, []string{"a:1", "c:3"}) {
		t.Fatalf("unexpected %v", others)
	}
}
