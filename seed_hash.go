package main

import (
	"sync"

	"golang.org/x/crypto/sha3"
)

func kawpowEpoch(height int64) int64 {
	if height < 0 {
		return 0
	}
	return height / kawpowEpochLength
}

// seedHashCache remembers the most recent epoch's seed; the synchronizer asks
// for the same epoch on every rebuild for 7500 blocks at a time.
var seedHashCache struct {
	mu    sync.Mutex
	valid bool
	epoch int64
	seed  [32]byte
}

// seedHashForHeight applies legacy Keccak-256 once per completed epoch,
// starting from 32 zero bytes.
func seedHashForHeight(height int64) [32]byte {
	epoch := kawpowEpoch(height)

	seedHashCache.mu.Lock()
	defer seedHashCache.mu.Unlock()
	if seedHashCache.valid && seedHashCache.epoch == epoch {
		return seedHashCache.seed
	}

	var seed [32]byte
	start := int64(0)
	if seedHashCache.valid && seedHashCache.epoch < epoch {
		seed = seedHashCache.seed
		start = seedHashCache.epoch
	}
	h := sha3.NewLegacyKeccak256()
	for i := start; i < epoch; i++ {
		h.Reset()
		h.Write(seed[:])
		h.Sum(seed[:0])
	}

	seedHashCache.valid = true
	seedHashCache.epoch = epoch
	seedHashCache.seed = seed
	return seed
}
