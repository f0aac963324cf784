package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

type fakeTemplateSource struct {
	mu  sync.Mutex
	tpl GetBlockTemplateResult
	err error
}

func (f *fakeTemplateSource) set(tpl GetBlockTemplateResult, err error) {
	f.mu.Lock()
	f.tpl, f.err = tpl, err
	f.mu.Unlock()
}

func (f *fakeTemplateSource) GetBlockTemplate(ctx context.Context) (GetBlockTemplateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tpl, f.err
}

type broadcastCall struct {
	job    *CandidateBlock
	clean  bool
	locked bool
}

type recordingBroadcaster struct {
	work  *WorkState
	calls []broadcastCall
}

func (r *recordingBroadcaster) broadcastJob(c *CandidateBlock, clean bool) (int, error) {
	r.calls = append(r.calls, broadcastCall{job: c, clean: clean, locked: r.work.Locked()})
	return 1, nil
}

func newTestSynchronizer(t *testing.T) (*templateSynchronizer, *fakeTemplateSource, *recordingBroadcaster, *WorkState) {
	t.Helper()
	ws := newTestWorkState(t, 1000)
	ws.SetPayoutAddress(testAddress(ravencoinMainNetParams.PubKeyHashAddrID, 5))
	src := &fakeTemplateSource{}
	rec := &recordingBroadcaster{work: ws}
	return newTemplateSynchronizer(src, ws, rec, nil, 0), src, rec, ws
}

func TestSynchronizerCleanOnHeightChangeOnly(t *testing.T) {
	syncer, src, rec, _ := newTestSynchronizer(t)
	ctx := context.Background()

	src.set(testTemplateResult(t, 100), nil)
	if err := syncer.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	src.set(testTemplateResult(t, 100, testMempoolTx(t, 1)), nil)
	if err := syncer.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	src.set(testTemplateResult(t, 101), nil)
	if err := syncer.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(rec.calls) != 3 {
		t.Fatalf("broadcasts = %d, want 3", len(rec.calls))
	}
	for i, want := range []bool{true, false, true} {
		if rec.calls[i].clean != want {
			t.Errorf("broadcast %d clean = %v, want %v", i, rec.calls[i].clean, want)
		}
	}
	if syncer.Height() != 101 {
		t.Fatalf("Height() = %d, want 101", syncer.Height())
	}
}

func TestSynchronizerReleasesLockAfterHeightBroadcast(t *testing.T) {
	syncer, src, rec, ws := newTestSynchronizer(t)
	ctx := context.Background()

	src.set(testTemplateResult(t, 100), nil)
	if err := syncer.tick(ctx); err != nil {
		t.Fatal(err)
	}
	if !ws.TryLock(100) {
		t.Fatal("TryLock failed")
	}

	src.set(testTemplateResult(t, 100, testMempoolTx(t, 3)), nil)
	if err := syncer.tick(ctx); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("locked state broadcast new work at the same height")
	}

	src.set(testTemplateResult(t, 101), nil)
	if err := syncer.tick(ctx); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 2 {
		t.Fatalf("broadcasts = %d, want 2", len(rec.calls))
	}
	last := rec.calls[1]
	if !last.locked {
		t.Fatal("lock was released before the new height was broadcast")
	}
	if ws.Locked() {
		t.Fatal("lock still held after the height change broadcast")
	}
	if ws.ActiveWork() != last.job {
		t.Fatal("broadcast candidate is not the published one")
	}
}

func TestSynchronizerFailedHeightChangeReleasesLock(t *testing.T) {
	syncer, src, rec, ws := newTestSynchronizer(t)
	ctx := context.Background()

	src.set(testTemplateResult(t, 100), nil)
	if err := syncer.tick(ctx); err != nil {
		t.Fatal(err)
	}
	if !ws.TryLock(100) {
		t.Fatal("TryLock failed")
	}

	broken := testTemplateResult(t, 101, GBTTransaction{Data: "zz", Txid: strings.Repeat("00", 32)})
	src.set(broken, nil)
	if err := syncer.tick(ctx); err == nil {
		t.Fatal("undecodable transaction accepted")
	}
	if ws.Locked() {
		t.Fatal("failed height change kept the previous height's lock")
	}

	src.set(testTemplateResult(t, 101), nil)
	for i := 0; i < 5; i++ {
		if err := syncer.tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if len(rec.calls) != 2 {
		t.Fatalf("broadcasts = %d, want 2", len(rec.calls))
	}
	if !rec.calls[1].clean || rec.calls[1].job.Height != 101 {
		t.Fatalf("recovery broadcast = height %d clean %v", rec.calls[1].job.Height, rec.calls[1].clean)
	}
	if c := ws.ActiveWork(); c == nil || c.Height != 101 {
		t.Fatalf("active work after recovery = %v", c)
	}
}

func TestSynchronizerRejectionForcesCleanRebuild(t *testing.T) {
	syncer, src, rec, ws := newTestSynchronizer(t)
	ctx := context.Background()

	src.set(testTemplateResult(t, 100), nil)
	if err := syncer.tick(ctx); err != nil {
		t.Fatal(err)
	}
	first := ws.Snapshot()

	ws.ClearForNewHeight()
	if err := syncer.tick(ctx); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 2 {
		t.Fatalf("broadcasts = %d, want 2", len(rec.calls))
	}
	if !rec.calls[1].clean {
		t.Fatal("rebuild after a cleared state must be clean")
	}
	if rec.calls[1].job == first || rec.calls[1].job.Seq <= first.Seq {
		t.Fatal("rebuild reused the old candidate")
	}
}

func TestSynchronizerErrorKinds(t *testing.T) {
	syncer, src, rec, _ := newTestSynchronizer(t)
	ctx := context.Background()

	src.set(GetBlockTemplateResult{}, fmt.Errorf("%w: connection refused", errUpstreamUnavailable))
	err := syncer.tick(ctx)
	if templateErrorKind(err) != "unavailable" {
		t.Fatalf("unreachable node: kind %q (%v)", templateErrorKind(err), err)
	}

	bad := testTemplateResult(t, 100)
	bad.Bits = "zz"
	src.set(bad, nil)
	err = syncer.tick(ctx)
	if !errors.Is(err, errMalformedTemplate) || templateErrorKind(err) != "malformed" {
		t.Fatalf("bad bits: %v", err)
	}

	mismatch := testTemplateResult(t, 100)
	mismatch.Target = strings.Repeat("f", 64)
	src.set(mismatch, nil)
	if err := syncer.tick(ctx); !errors.Is(err, errMalformedTemplate) {
		t.Fatalf("target mismatch: %v", err)
	}

	noCommitment := testTemplateResult(t, 100)
	noCommitment.DefaultWitnessCommitment = ""
	src.set(noCommitment, nil)
	if err := syncer.tick(ctx); !errors.Is(err, errMalformedTemplate) {
		t.Fatalf("missing commitment: %v", err)
	}

	if len(rec.calls) != 0 {
		t.Fatal("failed ticks must not broadcast")
	}
	if syncer.Height() != 0 {
		t.Fatal("failed ticks must not move the height")
	}
}

func TestSynchronizerTriggerCoalesces(t *testing.T) {
	syncer, _, _, _ := newTestSynchronizer(t)
	syncer.Trigger()
	syncer.Trigger()
	if len(syncer.trigger) != 1 {
		t.Fatalf("pending triggers = %d, want 1", len(syncer.trigger))
	}
}

func TestEncodeJobBatchSetTargetBeforeNotify(t *testing.T) {
	ws := newTestWorkState(t, 1000)
	ws.SetPayoutAddress(testAddress(ravencoinMainNetParams.PubKeyHashAddrID, 5))
	c := applyTemplate(t, ws, testTemplate(t, 100), true)

	batch, err := encodeJobBatch(c, true)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(batch), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("clean batch has %d lines, want 2", len(lines))
	}
	var setTarget, notify StratumNotification
	if err := json.Unmarshal([]byte(lines[0]), &setTarget); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &notify); err != nil {
		t.Fatal(err)
	}
	if setTarget.Method != notifySetTarget || setTarget.Params[0] != c.Target {
		t.Fatalf("first line = %+v", setTarget)
	}
	if notify.Method != notifyJob || len(notify.Params) != 7 || notify.Params[1] != c.HeaderHashHex() || notify.Params[4] != true {
		t.Fatalf("second line = %+v", notify)
	}

	batch, err = encodeJobBatch(c, false)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(batch), "\n") != 1 || !strings.Contains(string(batch), notifyJob) {
		t.Fatalf("non-clean batch = %s", batch)
	}
}
