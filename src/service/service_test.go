package service

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marabunet/marabu/src/chain"
	"github.com/marabunet/marabu/src/common"
	"github.com/marabunet/marabu/src/net"
	"github.com/marabunet/marabu/src/node"
	"github.com/marabunet/marabu/src/peers"
	"github.com/sirupsen/logrus"
)

func newTestService(t *testing.T) (*Service, *node.Node) {
	logger := common.NewTestEntry(t, logrus.DebugLevel)

	trans, err := net.NewTCPTransport("127.0.0.1:0", "", time.Second, 0, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	gossip := node.NewGossip(trans, time.Second, logger)

	conf := chain.DefaultConfig()
	conf.Target = chain.DebugTarget

	chn := chain.NewChain(conf, chain.NewInmemStore(), gossip, logger)
	if err := chn.Bootstrap(); err != nil {
		t.Fatalf("err: %v", err)
	}

	book, err := peers.NewPeers(&peers.StaticPeers{})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	n := node.NewNode(node.TestConfig(t), chn, gossip, book, trans)

	return NewService("127.0.0.1:0", n, logger), n
}

func get(t *testing.T, s *Service, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStats(t *testing.T) {
	s, n := newTestService(t)
	defer n.Shutdown()

	rec := get(t, s, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status should be 200, not %d", rec.Code)
	}

	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("CORS header should be set")
	}

	var stats map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("err: %v", err)
	}

	if stats["tip"] != chain.GenesisID {
		t.Fatalf("tip should be genesis, not %s", stats["tip"])
	}

	if stats["height"] != "0" {
		t.Fatalf("height should be 0, not %s", stats["height"])
	}
}

func TestChainTip(t *testing.T) {
	s, n := newTestService(t)
	defer n.Shutdown()

	rec := get(t, s, "/tip")

	var tip struct {
		BlockID string `json:"blockid"`
		Height  int    `json:"height"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&tip); err != nil {
		t.Fatalf("err: %v", err)
	}

	if tip.BlockID != chain.GenesisID || tip.Height != 0 {
		t.Fatalf("unexpected tip %+v", tip)
	}
}

func TestGetObject(t *testing.T) {
	s, n := newTestService(t)
	defer n.Shutdown()

	rec := get(t, s, "/object/"+chain.GenesisID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status should be 200, not %d", rec.Code)
	}

	body, _ := ioutil.ReadAll(rec.Body)
	if string(body) != chain.GenesisJSON {
		t.Fatalf("body should be the canonical genesis, got %s", body)
	}

	rec = get(t, s, "/object/"+strings.Repeat("ab", 32))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status should be 404, not %d", rec.Code)
	}

	rec = get(t, s, "/object/xyz")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status should be 400, not %d", rec.Code)
	}
}

func TestPeersAndMetrics(t *testing.T) {
	s, n := newTestService(t)
	defer n.Shutdown()

	rec := get(t, s, "/peers")

	var ps []string
	if err := json.NewDecoder(rec.Body).Decode(&ps); err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(ps) != 0 {
		t.Fatalf("there should be no peers, got %v", ps)
	}

	rec = get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status should be 200, not %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "marabu_node_dropped_objects") {
		t.Fatal("metrics should expose marabu_node_dropped_objects")
	}
}
