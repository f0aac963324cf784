package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestProxyMetricsExposition(t *testing.T) {
	m, err := newProxyMetrics()
	if err != nil {
		t.Fatal(err)
	}
	ws := newTestWorkState(t, 1000)
	ws.SetPayoutAddress(testAddress(ravencoinMainNetParams.PubKeyHashAddrID, 5))
	c := applyTemplate(t, ws, testTemplate(t, 100), true)

	m.RecordCandidate(c)
	m.RecordTemplateError("unavailable")
	m.RecordBroadcast(true, 2)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.RecordBlockSubmission(blockStatusAccepted)
	m.ObserveRPCLatency("getblocktemplate", 3*time.Millisecond)
	m.RecordRPCError("submitblock")
	m.RecordZMQReconnect()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		"rvnproxy_template_height 100",
		`rvnproxy_template_errors_total{kind="unavailable"} 1`,
		`rvnproxy_job_broadcasts_total{clean="true"} 1`,
		"rvnproxy_job_broadcast_drops_total 2",
		"rvnproxy_stratum_sessions 1",
		`rvnproxy_block_submissions_total{result="accepted"} 1`,
		`rvnproxy_rpc_latency_seconds_count{method="getblocktemplate"} 1`,
		`rvnproxy_rpc_errors_total{method="submitblock"} 1`,
		"rvnproxy_zmq_reconnects_total 1",
		"rvnproxy_candidates_built_total 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestProxyMetricsNilSafe(t *testing.T) {
	var m *proxyMetrics
	m.RecordCandidate(nil)
	m.RecordTemplateError("build")
	m.RecordBroadcast(false, 1)
	m.SessionOpened()
	m.SessionClosed()
	m.RecordBlockSubmission(blockStatusRejected)
	m.ObserveRPCLatency("x", time.Second)
	m.RecordRPCError("x")
	m.RecordZMQReconnect()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nil metrics handler status = %d", rec.Code)
	}
}
