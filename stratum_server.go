package main

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"
)

// stratumServer accepts miner connections and runs one session per
// connection. With maxConns > 0 the accept loop blocks once that many
// sessions are live.
type stratumServer struct {
	svc      *stratumServices
	maxConns int

	limiter *sizedwaitgroup.SizedWaitGroup
	wg      sync.WaitGroup
}

func newStratumServer(svc *stratumServices, maxConns int) *stratumServer {
	srv := &stratumServer{svc: svc, maxConns: maxConns}
	if maxConns > 0 {
		swg := sizedwaitgroup.New(maxConns)
		srv.limiter = &swg
	}
	return srv
}

// serve runs the accept loop until ctx is cancelled or ln fails.
func (srv *stratumServer) serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		logger.Info("shutdown requested; closing stratum listener")
		_ = ln.Close()
	}()

	for {
		if srv.limiter != nil {
			if err := srv.limiter.AddWithContext(ctx); err != nil {
				return nil
			}
		}
		conn, err := ln.Accept()
		if err != nil {
			if srv.limiter != nil {
				srv.limiter.Done()
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var nErr net.Error
			if errors.As(err, &nErr) && nErr.Timeout() {
				continue
			}
			logger.Error("accept error", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		disableTCPNagle(conn)

		s := newStratumSession(ctx, conn, srv.svc)
		srv.svc.hub.add(s)
		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			if srv.limiter != nil {
				defer srv.limiter.Done()
			}
			s.handle()
		}()
	}
}

// drain closes every session and waits up to timeout for their goroutines.
func (srv *stratumServer) drain(timeout time.Duration) bool {
	logger.Info("draining active miners", "sessions", srv.svc.hub.count())
	srv.svc.hub.closeAll("shutdown")

	done := make(chan struct{})
	go func() {
		srv.wg.Wait()
		close(done)
	}()
	start := time.Now()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		logger.Warn("timed out waiting for miners to drain", "waited", formatDuration(time.Since(start)))
		return false
	}
}

func disableTCPNagle(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
}
