package main

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

func TestStratumServerBroadcastAndDrain(t *testing.T) {
	ws := newTestWorkState(t, 1000)
	addr := testAddress(ravencoinMainNetParams.PubKeyHashAddrID, 7)
	ws.SetPayoutAddress(addr)
	applyTemplate(t, ws, testTemplate(t, 100), true)

	hub := newSessionHub(nil)
	srv := newStratumServer(&stratumServices{
		work:      ws,
		submitter: &fakeSubmitter{},
		hub:       hub,
		params:    &ravencoinMainNetParams,
	}, 4)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- srv.serve(ctx, ln) }()

	dial := func() *stratumTestConn {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = conn.Close() })
		return &stratumTestConn{t: t, conn: conn, reader: bufio.NewReader(conn)}
	}
	miner := dial()
	idle := dial()

	miner.authorize(addr)
	if resp := idle.call("mining.subscribe"); resp.Error != nil {
		t.Fatalf("subscribe error = %v", resp.Error)
	}
	waitFor(t, func() bool { return hub.count() == 2 })

	next := applyTemplate(t, ws, testTemplate(t, 101), true)
	sent, err := hub.broadcastJob(next, true)
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 {
		t.Fatalf("broadcast reached %d sessions, want only the authorized one", sent)
	}
	if n := miner.read(); n.Method != notifySetTarget {
		t.Fatalf("first broadcast line = %+v", n)
	}
	if n := miner.read(); n.Method != notifyJob || n.Params[0] != next.JobID {
		t.Fatalf("second broadcast line = %+v", n)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	if !srv.drain(5 * time.Second) {
		t.Fatal("sessions did not drain")
	}
	if hub.count() != 0 {
		t.Fatalf("%d sessions left after drain", hub.count())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
