package main

import (
	"sync"
)

// sessionHub tracks connected sessions and fans job notifications out to
// them. Broadcasts never block: a session whose queue is full misses the
// update and is counted as dropped.
type sessionHub struct {
	mu       sync.Mutex
	sessions map[*stratumSession]struct{}
	metrics  *proxyMetrics
}

func newSessionHub(metrics *proxyMetrics) *sessionHub {
	return &sessionHub{
		sessions: make(map[*stratumSession]struct{}),
		metrics:  metrics,
	}
}

func (h *sessionHub) add(s *stratumSession) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	h.metrics.SessionOpened()
}

func (h *sessionHub) remove(s *stratumSession) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()
	if ok {
		h.metrics.SessionClosed()
	}
}

func (h *sessionHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *sessionHub) snapshot() []*stratumSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*stratumSession, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// encodeJobBatch renders set_target (clean jobs only) followed by notify as
// one write so a miner never sees the job before its target.
func encodeJobBatch(c *CandidateBlock, clean bool) ([]byte, error) {
	var batch []byte
	if clean {
		line, err := fastJSONLine(StratumNotification{Method: notifySetTarget, Params: []any{c.Target}})
		if err != nil {
			return nil, err
		}
		batch = append(batch, line...)
	}
	line, err := fastJSONLine(StratumNotification{Method: notifyJob, Params: c.notifyParams(clean)})
	if err != nil {
		return nil, err
	}
	return append(batch, line...), nil
}

// broadcastJob queues c to every authorized session and returns how many
// sessions received it. Sessions that have not authorized yet get their
// first job from the authorize handler instead.
func (h *sessionHub) broadcastJob(c *CandidateBlock, clean bool) (int, error) {
	batch, err := encodeJobBatch(c, clean)
	if err != nil {
		return 0, err
	}
	sessions := h.snapshot()
	sent, dropped := 0, 0
	for _, s := range sessions {
		if !s.isAuthorized() {
			continue
		}
		if s.enqueueJob(c, clean, batch) {
			sent++
		} else {
			dropped++
		}
	}
	h.metrics.RecordBroadcast(clean, dropped)
	if dropped > 0 {
		logger.Warn("job broadcast blocked; dropping update", "job_id", c.JobID, "sessions", len(sessions), "dropped", dropped)
	}
	return sent, nil
}

// closeAll closes every session connection; used on shutdown.
func (h *sessionHub) closeAll(reason string) {
	for _, s := range h.snapshot() {
		s.Close(reason)
	}
}
