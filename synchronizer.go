package main

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

type templateSource interface {
	GetBlockTemplate(ctx context.Context) (GetBlockTemplateResult, error)
}

// blockSubmitter returns the node's rejection reason, or "" when the block
// was accepted.
type blockSubmitter interface {
	SubmitBlock(ctx context.Context, blockHex string) (string, error)
}

type jobBroadcaster interface {
	broadcastJob(c *CandidateBlock, clean bool) (int, error)
}

// templateSynchronizer polls the node for block templates, applies them to
// the work state and announces new candidates. It is the only writer of
// candidates.
type templateSynchronizer struct {
	source   templateSource
	work     *WorkState
	hub      jobBroadcaster
	metrics  *proxyMetrics
	interval time.Duration

	trigger chan struct{}

	lastHeight    int64
	currentHeight atomic.Int64
	lastErr       string
	ticks         atomic.Uint64

	zmqAddr        string
	zmqHealthy     atomic.Bool
	zmqDisconnects atomic.Uint64
}

func newTemplateSynchronizer(source templateSource, work *WorkState, hub jobBroadcaster, metrics *proxyMetrics, interval time.Duration) *templateSynchronizer {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &templateSynchronizer{
		source:     source,
		work:       work,
		hub:        hub,
		metrics:    metrics,
		interval:   interval,
		trigger:    make(chan struct{}, 1),
		lastHeight: -1,
	}
}

// Height is the height of the most recent valid template, or 0 before the
// first one.
func (t *templateSynchronizer) Height() int64 {
	return t.currentHeight.Load()
}

// Trigger requests an immediate poll. Requests coalesce while one is
// already pending.
func (t *templateSynchronizer) Trigger() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

func (t *templateSynchronizer) run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.tickAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-t.trigger:
		}
		t.tickAndLog(ctx)
	}
}

func (t *templateSynchronizer) tickAndLog(ctx context.Context) {
	err := t.tick(ctx)
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		if t.lastErr != "" {
			logger.Info("block template updates recovered", "after_error", t.lastErr)
			t.lastErr = ""
		}
		return
	}
	kind := templateErrorKind(err)
	t.metrics.RecordTemplateError(kind)
	// The poller runs ten times a second; repeat only when the cause changes.
	if msg := err.Error(); msg != t.lastErr {
		t.lastErr = msg
		logger.Error("block template update failed", "kind", kind, "error", err)
	}
}

func templateErrorKind(err error) string {
	switch {
	case errors.Is(err, errUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, errMalformedTemplate):
		return "malformed"
	default:
		return "build"
	}
}

// tick runs one poll: fetch, validate, rebuild when needed and broadcast.
func (t *templateSynchronizer) tick(ctx context.Context) error {
	t.ticks.Add(1)
	raw, err := t.source.GetBlockTemplate(ctx)
	if err != nil {
		return err
	}
	tpl, err := parseBlockTemplate(raw)
	if err != nil {
		return err
	}

	heightChanged := tpl.Height != t.lastHeight
	if heightChanged {
		if t.lastHeight >= 0 {
			logger.Info("new block height", "height", tpl.Height, "previous", t.lastHeight, "txs", len(tpl.Transactions))
		}
		t.work.ClearForNewHeight()
		t.lastHeight = tpl.Height
		t.currentHeight.Store(tpl.Height)
		// The previous height's lock goes once this tick is over, even
		// when the build below fails; later ticks see no height change.
		defer t.work.ReleaseSubmissionLock()
	}

	c, err := t.work.update(tpl, heightChanged)
	if err != nil {
		return err
	}
	if c != nil {
		// A rejected submit clears the candidate mid-height; miners must
		// drop their old work in that case too.
		clean := heightChanged || t.work.Snapshot() == nil
		t.work.Replace(c)
		t.metrics.RecordCandidate(c)
		sent, err := t.hub.broadcastJob(c, clean)
		if err != nil {
			logger.Error("job broadcast failed", "job_id", c.JobID, "error", err)
		}
		logger.Debug("new job", "job_id", c.JobID, "height", c.Height, "clean", clean, "txs", len(c.Transactions), "sessions", sent)
	}
	return nil
}
