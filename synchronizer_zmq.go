package main

import (
	"context"
	"encoding/hex"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
)

func (t *templateSynchronizer) markZMQHealthy() {
	if t.zmqHealthy.Swap(true) {
		return
	}
	verb := "connected"
	if t.zmqDisconnects.Load() > 0 {
		verb = "reconnected"
	}
	logger.Info("zmq watcher healthy", "addr", t.zmqAddr, "state", verb)
	if verb == "reconnected" {
		t.metrics.RecordZMQReconnect()
	}
}

func (t *templateSynchronizer) markZMQUnhealthy(reason string, err error) {
	fields := []any{"reason", reason}
	if err != nil {
		fields = append(fields, "error", err)
	}
	if t.zmqHealthy.Swap(false) {
		t.zmqDisconnects.Add(1)
		logger.Warn("zmq watcher unhealthy", fields...)
	} else if err != nil {
		logger.Error("zmq watcher error", fields...)
	}
}

func nextZMQBackoff(backoff time.Duration) time.Duration {
	backoff *= 2
	if backoff > defaultZMQRecreateBackoffMax {
		backoff = defaultZMQRecreateBackoffMax
	}
	return backoff
}

// zmqHashBlockLoop subscribes to the node's hashblock publisher and triggers
// an immediate poll for every new block. Polling continues regardless; the
// subscription only shortens the delay after a block is found.
func (t *templateSynchronizer) zmqHashBlockLoop(ctx context.Context, addr string) {
	t.zmqAddr = addr
	backoff := defaultZMQRecreateBackoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		err := t.watchZMQ(ctx, addr)
		if t.zmqHealthy.Load() {
			backoff = defaultZMQRecreateBackoffMin
		}
		if err != nil {
			t.markZMQUnhealthy("socket", err)
		}
		if err := sleepContext(ctx, backoff); err != nil {
			return
		}
		backoff = nextZMQBackoff(backoff)
	}
}

// watchZMQ runs one subscription until it fails or ctx ends.
func (t *templateSynchronizer) watchZMQ(ctx context.Context, addr string) error {
	sub, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return err
	}
	defer sub.Close()
	_ = sub.SetLinger(0)

	if err := sub.SetSubscribe("hashblock"); err != nil {
		return err
	}
	if err := sub.SetRcvtimeo(defaultZMQReceiveTimeout); err != nil {
		return err
	}
	if err := sub.Connect(addr); err != nil {
		return err
	}
	logger.Info("watching ZMQ block notifications", "addr", addr)

	for {
		if ctx.Err() != nil {
			return nil
		}
		frames, err := sub.RecvMessageBytes(0)
		if err != nil {
			eno := zmq4.AsErrno(err)
			if eno == zmq4.Errno(syscall.EAGAIN) || eno == zmq4.ETIMEDOUT {
				continue
			}
			return err
		}
		t.markZMQHealthy()
		if len(frames) < 2 {
			logger.Warn("zmq notification malformed", "frames", len(frames))
			continue
		}
		if string(frames[0]) != "hashblock" {
			continue
		}
		logger.Info("zmq block notification", "block_hash", hex.EncodeToString(frames[1]))
		t.Trigger()
	}
}
