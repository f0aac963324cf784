package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

var nextSessionID uint64

// stratumServices is what every session shares: the work state, the node
// and the optional journal, notifier and metrics.
type stratumServices struct {
	work      *WorkState
	submitter blockSubmitter
	hub       *sessionHub
	journal   *blockJournal
	notifier  *blockNotifier
	metrics   *proxyMetrics
	params    *chaincfg.Params
}

// stratumSession is one miner connection. The read loop runs on the
// goroutine calling handle; notifications are written by writeLoop.
type stratumSession struct {
	id     string
	seq    uint64
	conn   net.Conn
	reader *bufio.Reader
	svc    *stratumServices
	ctx    context.Context
	cancel context.CancelFunc

	writeMu   sync.Mutex
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once

	stateMu           sync.Mutex
	subscribed        bool
	authorized        bool
	authorizedAddress string
	worker            string

	jobMu      sync.Mutex
	lastJobSeq uint64

	idleTimeout time.Duration
}

func newStratumSession(ctx context.Context, conn net.Conn, svc *stratumServices) *stratumSession {
	if ctx == nil {
		ctx = context.Background()
	}
	sctx, cancel := context.WithCancel(ctx)
	return &stratumSession{
		id:          conn.RemoteAddr().String(),
		seq:         atomic.AddUint64(&nextSessionID, 1),
		conn:        conn,
		reader:      bufio.NewReaderSize(conn, maxStratumMessageSize),
		svc:         svc,
		ctx:         sctx,
		cancel:      cancel,
		out:         make(chan []byte, sessionQueueDepth),
		done:        make(chan struct{}),
		idleTimeout: stratumIdleTimeout,
	}
}

// Close tears the session down once; later calls are no-ops.
func (s *stratumSession) Close(reason string) {
	s.closeOnce.Do(func() {
		if reason == "" {
			reason = "shutdown"
		}
		logger.Info("closing miner", "remote", s.id, "worker", s.currentWorker(), "reason", reason)
		close(s.done)
		s.cancel()
		_ = s.conn.Close()
		if s.svc != nil && s.svc.hub != nil {
			s.svc.hub.remove(s)
		}
	})
}

func (s *stratumSession) isAuthorized() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.authorized
}

func (s *stratumSession) currentWorker() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.worker
}

// handle reads newline-delimited requests until the peer disconnects, a
// read fails or the session is closed.
func (s *stratumSession) handle() {
	defer s.Close("disconnected")
	go s.writeLoop()

	logger.Debug("miner connected", "remote", s.id, "session", s.seq)
	for {
		if s.ctx.Err() != nil {
			return
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
			if s.ctx.Err() == nil {
				logger.Error("set read deadline failed", "remote", s.id, "error", err)
			}
			return
		}

		line, err := s.reader.ReadSlice('\n')
		if err != nil {
			if errors.Is(err, bufio.ErrBufferFull) {
				logger.Warn("closing miner for oversized message", "remote", s.id, "limit_bytes", maxStratumMessageSize)
				return
			}
			var nErr net.Error
			if errors.As(err, &nErr) && nErr.Timeout() {
				logger.Warn("closing miner for idle timeout", "remote", s.id, "idle", formatDuration(s.idleTimeout))
				return
			}
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				logger.Error("read error", "remote", s.id, "error", err)
			}
			return
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		// ReadSlice reuses its buffer and the decoder may keep references
		// into the input.
		msg := append([]byte(nil), line...)
		if logger.Enabled(logLevelDebug) {
			logger.Debug("stratum recv", "remote", s.id, "line", string(msg))
		}

		var req StratumRequest
		if err := fastJSONUnmarshal(msg, &req); err != nil {
			logger.Warn("json error from miner", "remote", s.id, "error", err)
			return
		}
		s.dispatch(&req)
	}
}
