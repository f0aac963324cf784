package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

type stratumHandler func(s *stratumSession, req *StratumRequest) (any, error)

// stratumHandlers is the closed dispatch table. Anything not listed here is
// answered with method not found.
var stratumHandlers map[stratumMethod]stratumHandler

func init() {
	stratumHandlers = map[stratumMethod]stratumHandler{
		methodSubscribe:           (*stratumSession).handleSubscribe,
		methodAuthorize:           (*stratumSession).handleAuthorize,
		methodSubmit:              (*stratumSession).handleSubmit,
		methodExtranonceSubscribe: (*stratumSession).handleExtranonceSubscribe,
		methodPing:                (*stratumSession).handlePing,
	}
}

func (s *stratumSession) dispatch(req *StratumRequest) {
	method := parseStratumMethod(req.Method)
	h, ok := stratumHandlers[method]
	if !ok {
		logger.Debug("unknown stratum method", "remote", s.id, "method", req.Method)
		s.writeResult(req.ID, nil, fmt.Errorf("%w: %s", errMethodNotFound, req.Method))
		return
	}
	result, err := h(s, req)
	s.writeResult(req.ID, result, err)

	if method == methodAuthorize && err == nil {
		s.sendInitialWork()
	}
}

func (s *stratumSession) handleSubscribe(req *StratumRequest) (any, error) {
	s.stateMu.Lock()
	s.subscribed = true
	s.stateMu.Unlock()
	return []any{subscribeExtranonce1, subscribeExtranonce2Size}, nil
}

func (s *stratumSession) handleExtranonceSubscribe(req *StratumRequest) (any, error) {
	return false, nil
}

func (s *stratumSession) handlePing(req *StratumRequest) (any, error) {
	return "pong", nil
}

// handleAuthorize validates the username's address part and makes it the
// process-wide payout address.
func (s *stratumSession) handleAuthorize(req *StratumRequest) (any, error) {
	username, ok := stringParam(req.Params, 0)
	if !ok || strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("%w: authorize expects a username", errInvalidParams)
	}
	if len(username) > maxWorkerNameLen {
		return nil, fmt.Errorf("%w: username too long", errInvalidParams)
	}
	addr := workerAddress(username)
	if _, err := decodeP2PKHAddress(addr, s.svc.params); err != nil {
		logger.Warn("authorize rejected", "remote", s.id, "worker", username, "error", err)
		return nil, err
	}

	s.stateMu.Lock()
	s.authorized = true
	s.authorizedAddress = addr
	s.worker = username
	s.stateMu.Unlock()

	prev := s.svc.work.PayoutAddress()
	s.svc.work.SetPayoutAddress(addr)
	if prev != addr {
		logger.Info("payout address set", "remote", s.id, "worker", username, "address", addr)
	}
	return true, nil
}

// sendInitialWork pushes the current job so a newly authorized miner does
// not idle until the next template change.
func (s *stratumSession) sendInitialWork() {
	// Nothing to hand out while a found block holds the height.
	c := s.svc.work.ActiveWork()
	if c == nil {
		return
	}
	batch, err := encodeJobBatch(c, true)
	if err != nil {
		logger.Error("encode initial work", "remote", s.id, "error", err)
		return
	}
	if !s.enqueueJob(c, true, batch) {
		logger.Warn("initial work dropped", "remote", s.id, "job_id", c.JobID)
	}
}

// handleSubmit assembles the full block from the miner's nonce and mix hash
// and hands it to the node. Job id and header hash are advisory: the proxy
// holds a single candidate and always submits against it.
func (s *stratumSession) handleSubmit(req *StratumRequest) (any, error) {
	if !s.isAuthorized() {
		return nil, errUnauthorized
	}
	if len(req.Params) < 5 {
		return nil, fmt.Errorf("%w: submit expects 5 params, got %d", errInvalidParams, len(req.Params))
	}
	fields := make([]string, 5)
	for i := range fields {
		v, ok := stringParam(req.Params, i)
		if !ok {
			return nil, fmt.Errorf("%w: param %d is not a string", errInvalidParams, i)
		}
		fields[i] = v
	}
	worker, jobID, nonceHex, headerHex, mixHex := fields[0], fields[1], fields[2], fields[3], fields[4]
	if len(jobID) > maxJobIDLen {
		return nil, fmt.Errorf("%w: job id too long", errInvalidParams)
	}

	c := s.svc.work.ActiveWork()
	if c == nil {
		logger.Debug("submit without active work", "remote", s.id, "worker", worker, "height_locked", s.svc.work.Locked())
		return nil, errNoActiveWork
	}

	nonce, err := decodeHexField("nonce", nonceHex, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidParams, err)
	}
	mix, err := decodeHexField("mix hash", mixHex, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidParams, err)
	}

	if jobID != c.JobID {
		logger.Debug("submit for older job id", "remote", s.id, "job_id", jobID, "current_job_id", c.JobID)
	}
	if want := c.HeaderHashHex(); !strings.EqualFold(strings.TrimPrefix(headerHex, "0x"), want) {
		logger.Debug("submit header hash differs from current job", "remote", s.id, "header_hash", headerHex, "current", want)
	}

	blockHex := hex.EncodeToString(c.blockBytes(nonce, mix))
	rec := blockRecord{
		Key:        blockRecordKey(c.HeaderHashHex(), nonceHex),
		Height:     c.Height,
		HeaderHash: c.HeaderHashHex(),
		JobID:      c.JobID,
		Worker:     worker,
		PayoutAddr: c.PayoutAddress,
		BlockHex:   blockHex,
	}

	logger.Info("submitting block", "remote", s.id, "worker", worker, "height", c.Height, "header_hash", rec.HeaderHash)
	// A found block is submitted even if the miner disconnects meanwhile.
	reason, err := s.svc.submitter.SubmitBlock(context.WithoutCancel(s.ctx), blockHex)
	if err != nil {
		s.svc.work.ClearHeight(c.Height)
		if errors.Is(err, errUpstreamUnavailable) {
			rec.Status = blockStatusPending
			rec.Reason = err.Error()
			s.svc.metrics.RecordBlockSubmission(blockStatusPending)
			logger.Error("submitblock unreachable; block queued for replay", "height", c.Height, "error", err)
		} else {
			rec.Status = blockStatusRejected
			rec.Reason = err.Error()
			s.svc.metrics.RecordBlockSubmission(blockStatusRejected)
			logger.Warn("submitblock error", "height", c.Height, "error", err)
		}
		s.recordBlock(rec)
		return nil, fmt.Errorf("%w: %w", errBlockRejected, err)
	}
	if reason != "" {
		s.svc.work.ClearHeight(c.Height)
		rec.Status = blockStatusRejected
		rec.Reason = reason
		s.svc.metrics.RecordBlockSubmission(blockStatusRejected)
		s.recordBlock(rec)
		logger.Warn("block rejected", "height", c.Height, "reason", reason)
		return nil, fmt.Errorf("%w: %s", errBlockRejected, reason)
	}

	if !s.svc.work.TryLock(c.Height) {
		if s.svc.work.Height() == c.Height {
			logger.Info("block accepted but another submission already won this height", "height", c.Height)
			return nil, errNoActiveWork
		}
		// The node took it; the proxy already serves the next height.
		logger.Info("block accepted after a newer height was announced", "height", c.Height, "current_height", s.svc.work.Height())
	}
	rec.Status = blockStatusAccepted
	s.svc.metrics.RecordBlockSubmission(blockStatusAccepted)
	s.recordBlock(rec)
	s.svc.notifier.NotifyBlock(rec)
	logger.Info("block accepted", "height", c.Height, "header_hash", rec.HeaderHash, "worker", worker)
	return true, nil
}

func (s *stratumSession) recordBlock(rec blockRecord) {
	if s.svc.journal == nil {
		return
	}
	// Journal writes outlive the session; a disconnect right after submit
	// must not lose the record.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), pendingReplayTimeout)
	defer cancel()
	if err := s.svc.journal.Record(ctx, rec); err != nil {
		logger.Error("block journal write", "height", rec.Height, "error", err)
	}
}
