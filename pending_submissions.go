package main

import (
	"context"
	"time"
)

// pendingReplayer resubmits blocks whose submitblock never reached the
// node. A pending block is abandoned (marked stale) once the template
// height has moved past it.
type pendingReplayer struct {
	journal   *blockJournal
	submitter blockSubmitter
	work      *WorkState
	height    func() int64
	notifier  *blockNotifier
	metrics   *proxyMetrics
	interval  time.Duration
	timeout   time.Duration
}

func (r *pendingReplayer) run(ctx context.Context) {
	if r == nil || r.journal == nil || r.submitter == nil {
		return
	}
	interval := r.interval
	if interval <= 0 {
		interval = pendingReplayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.replayOnce(ctx)
		}
	}
}

func (r *pendingReplayer) replayOnce(ctx context.Context) {
	recs, err := r.journal.Pending(ctx)
	if err != nil {
		logger.Warn("pending block scan", "error", err)
		return
	}
	if len(recs) == 0 {
		return
	}
	current := int64(0)
	if r.height != nil {
		current = r.height()
	}
	timeout := r.timeout
	if timeout <= 0 {
		timeout = pendingReplayTimeout
	}

	for _, rec := range recs {
		if ctx.Err() != nil {
			return
		}
		if current > rec.Height {
			logger.Warn("pending block abandoned; chain moved on", "height", rec.Height, "current_height", current, "header_hash", rec.HeaderHash)
			if err := r.journal.SetStatus(ctx, rec.Key, blockStatusStale, "chain advanced before resubmission"); err != nil {
				logger.Warn("pending block status update", "error", err)
			}
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		reason, err := r.submitter.SubmitBlock(callCtx, rec.BlockHex)
		cancel()
		if err != nil {
			logger.Error("pending submitblock error", "height", rec.Height, "header_hash", rec.HeaderHash, "error", err)
			continue
		}
		if reason != "" {
			logger.Warn("pending block rejected", "height", rec.Height, "header_hash", rec.HeaderHash, "reason", reason)
			r.metrics.RecordBlockSubmission(blockStatusRejected)
			if err := r.journal.SetStatus(ctx, rec.Key, blockStatusRejected, reason); err != nil {
				logger.Warn("pending block status update", "error", err)
			}
			continue
		}

		logger.Info("pending block submitted", "height", rec.Height, "header_hash", rec.HeaderHash)
		r.metrics.RecordBlockSubmission(blockStatusSubmitted)
		if err := r.journal.SetStatus(ctx, rec.Key, blockStatusSubmitted, ""); err != nil {
			logger.Warn("pending block status update", "error", err)
		}
		if r.work != nil && !r.work.TryLock(rec.Height) {
			logger.Info("pending block submitted; height already locked or left behind", "height", rec.Height)
		}
		r.notifier.NotifyBlock(rec)
	}
}
