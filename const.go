package main

import "time"

const (
	poolSoftwareName = "goRvnProxy"

	// kawpowEpochLength is the number of blocks sharing one seed hash.
	kawpowEpochLength = 7500

	maxStratumMessageSize = 64 * 1024
	stratumWriteTimeout   = 60 * time.Second
	// stratumIdleTimeout drops connections that have not sent anything
	// (including keepalives) for this long.
	stratumIdleTimeout = 10 * time.Minute
	// sessionQueueDepth bounds outbound notification batches per session.
	// A session that falls this far behind starts dropping jobs.
	sessionQueueDepth = 16

	// mining.subscribe reply: extranonce1 and extranonce2 size.
	subscribeExtranonce1     = "00000000"
	subscribeExtranonce2Size = 4

	maxWorkerNameLen = 256
	maxJobIDLen      = 128
	// maxCoinbaseTagLen keeps the scriptSig under the 100 byte consensus
	// limit once the height push and flags are prepended.
	maxCoinbaseTagLen = 64

	pendingReplayInterval = 5 * time.Second
	pendingReplayTimeout  = 30 * time.Second
	shutdownDrainTimeout  = 10 * time.Second

	defaultZMQReceiveTimeout     = 5 * time.Second
	defaultZMQRecreateBackoffMin = 500 * time.Millisecond
	defaultZMQRecreateBackoffMax = 10 * time.Second
)
