package main

import (
	"io"
	"time"
)

func (s *stratumSession) writeJSON(v any) error {
	b, err := fastJSONLine(v)
	if err != nil {
		return err
	}
	return s.writeBytes(b)
}

func (s *stratumSession) writeBytes(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(stratumWriteTimeout)); err != nil {
		return err
	}
	if logger.Enabled(logLevelDebug) {
		logger.Debug("stratum send", "remote", s.id, "line", string(b))
	}
	for len(b) > 0 {
		n, err := s.conn.Write(b)
		if n > 0 {
			b = b[n:]
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
	}
	return nil
}

func (s *stratumSession) writeResponse(resp StratumResponse) {
	if err := s.writeJSON(resp); err != nil {
		logger.Error("write error", "remote", s.id, "error", err)
	}
}

func (s *stratumSession) writeResult(id any, result any, err error) {
	if err != nil {
		s.writeResponse(StratumResponse{ID: id, Result: nil, Error: stratumErrorFor(err)})
		return
	}
	s.writeResponse(StratumResponse{ID: id, Result: result, Error: nil})
}

// writeLoop drains queued notification batches until the session closes.
func (s *stratumSession) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case batch := <-s.out:
			if err := s.writeBytes(batch); err != nil {
				logger.Warn("notification write failed", "remote", s.id, "error", err)
				s.Close("write error")
				return
			}
		}
	}
}

// enqueue queues a pre-encoded batch without blocking. It reports false
// when the session is closed or its queue is full.
func (s *stratumSession) enqueue(batch []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- batch:
		return true
	default:
		return false
	}
}

// enqueueJob queues a job batch unless a newer job was already queued for
// this session. The first job a session receives always carries
// set_target, so a non-clean broadcast that races ahead of the initial
// work push is re-encoded as clean.
func (s *stratumSession) enqueueJob(c *CandidateBlock, clean bool, batch []byte) bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if c.Seq != 0 && c.Seq <= s.lastJobSeq {
		return true
	}
	if s.lastJobSeq == 0 && !clean {
		b, err := encodeJobBatch(c, true)
		if err != nil {
			logger.Error("encode job", "remote", s.id, "error", err)
			return false
		}
		batch = b
	}
	if !s.enqueue(batch) {
		return false
	}
	s.lastJobSeq = c.Seq
	return true
}
