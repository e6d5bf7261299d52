package net

import (
	"testing"

	"github.com/marabunet/marabu/src/common"
	"github.com/sirupsen/logrus"
)

func TestTCPTransport_Unspecified(t *testing.T) {
	trans, err := NewTCPTransport("0.0.0.0:0", "", 0, 0, common.NewTestEntry(t, logrus.DebugLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()

	if trans.AdvertiseAddr() != "" {
		t.Fatalf("unspecified bind address should not be advertised, got %v", trans.AdvertiseAddr())
	}
}

func TestTCPTransport_WithAdvertise(t *testing.T) {
	trans, err := NewTCPTransport("0.0.0.0:0", "127.0.0.1:12345", 0, 0, common.NewTestEntry(t, logrus.DebugLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()

	if trans.AdvertiseAddr() != "127.0.0.1:12345" {
		t.Fatalf("bad: %v", trans.AdvertiseAddr())
	}
}

func TestTCPTransport_BadAdvertise(t *testing.T) {
	_, err := NewTCPTransport("127.0.0.1:0", "not an address", 0, 0, common.NewTestEntry(t, logrus.DebugLevel))
	if err == nil {
		t.Fatalf("expected an error for an unresolvable advertise address")
	}
}
