package main

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
)

// WorkState is the one piece of state shared by the synchronizer and every
// stratum session. All access goes through its methods.
//
// The payout address is process wide: the latest successful authorize
// decides who the next coinbase pays, for every connected miner.
type WorkState struct {
	mu sync.Mutex

	current *CandidateBlock
	txCount int
	locked  bool
	// height of the last template applied by update; the lock and
	// rejection clears only act on this height.
	height int64

	payoutAddress string

	// Coinbase cache. Mempool-only changes reuse it; a new height, the
	// reroll counter or a cleared state force a rebuild.
	coinbase          []byte
	coinbaseNoWitness []byte
	coinbaseHeight    int64
	coinbaseAddress   string
	rerollCounter     int
	rerollEvery       int

	timestamps *timestampPolicy
	jobSeq     uint64
	tag        string
	params     *chaincfg.Params
	now        func() time.Time
}

type workStateOptions struct {
	RerollTicks         int
	CoinbaseTag         string
	TimestampHold       bool
	TimestampHoldMargin time.Duration
	Params              *chaincfg.Params
}

func newWorkState(opts workStateOptions) *WorkState {
	reroll := opts.RerollTicks
	if reroll <= 0 {
		reroll = defaultRerollTicks
	}
	params := opts.Params
	if params == nil {
		params = &ravencoinMainNetParams
	}
	return &WorkState{
		rerollEvery:   reroll,
		rerollCounter: reroll,
		timestamps:    newTimestampPolicy(opts.TimestampHold, opts.TimestampHoldMargin),
		tag:           opts.CoinbaseTag,
		params:        params,
		now:           time.Now,
	}
}

// Replace publishes a new candidate. Always permitted.
func (s *WorkState) Replace(c *CandidateBlock) {
	s.mu.Lock()
	s.current = c
	if c != nil {
		s.txCount = len(c.Transactions)
	} else {
		s.txCount = 0
	}
	s.mu.Unlock()
}

// TryLock sets the submission lock for height and reports whether this call
// set it. At most one caller per height sees true, and a caller whose block
// belongs to a height the synchronizer has already left gets false.
func (s *WorkState) TryLock(height int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked || s.height != height {
		return false
	}
	s.locked = true
	return true
}

// ClearForNewHeight drops the held candidate and the cached coinbase so the
// next synchronizer tick performs a full rebuild. The submission lock is
// left alone; ReleaseSubmissionLock clears it once the new height has been
// announced.
func (s *WorkState) ClearForNewHeight() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()
}

// ClearHeight is ClearForNewHeight for a failed submit: it only drops the
// candidate while the state still works on height.
func (s *WorkState) ClearHeight(height int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.height != height {
		return false
	}
	s.clearLocked()
	return true
}

func (s *WorkState) clearLocked() {
	s.current = nil
	s.txCount = 0
	s.coinbase = nil
	s.coinbaseNoWitness = nil
}

func (s *WorkState) ReleaseSubmissionLock() {
	s.mu.Lock()
	s.locked = false
	s.mu.Unlock()
}

// Height is the height of the last applied template.
func (s *WorkState) Height() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

func (s *WorkState) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Snapshot returns the current candidate, or nil before the first build.
func (s *WorkState) Snapshot() *CandidateBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ActiveWork returns the candidate a submit may use: nil while locked.
func (s *WorkState) ActiveWork() *CandidateBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return nil
	}
	return s.current
}

func (s *WorkState) SetPayoutAddress(addr string) {
	s.mu.Lock()
	s.payoutAddress = addr
	s.mu.Unlock()
}

func (s *WorkState) PayoutAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payoutAddress
}

// update applies one template to the state and returns a new candidate when
// miners need new work, or nil when nothing they hash over changed. It does
// not publish; the synchronizer calls Replace before broadcasting.
func (s *WorkState) update(tpl *blockTemplate, heightChanged bool) (*CandidateBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.height = tpl.Height

	// A block is in flight at this height; hold everything until the
	// node moves on.
	if s.locked && !heightChanged {
		return nil, nil
	}

	timestamp := s.timestamps.next(s.now().Unix())
	s.rerollCounter++

	if s.payoutAddress == "" {
		return nil, nil
	}

	rebuildCoinbase := heightChanged ||
		s.rerollCounter >= s.rerollEvery ||
		s.coinbase == nil ||
		s.coinbaseHeight != tpl.Height
	if !rebuildCoinbase && s.current != nil && s.txCount == len(tpl.Transactions)+1 {
		return nil, nil
	}

	if rebuildCoinbase {
		withWitness, noWitness, err := buildCoinbase(tpl.Height, tpl.Flags, s.payoutAddress, tpl.CoinbaseValue, tpl.WitnessCommitment, s.tag, s.params)
		if err != nil {
			return nil, fmt.Errorf("build coinbase: %w", err)
		}
		s.coinbase = withWitness
		s.coinbaseNoWitness = noWitness
		s.coinbaseHeight = tpl.Height
		s.coinbaseAddress = s.payoutAddress
		s.rerollCounter = 0
	}

	txs, err := tpl.decodeTransactions()
	if err != nil {
		return nil, err
	}
	c := assembleCandidate(tpl, s.coinbase, s.coinbaseNoWitness, txs, timestamp)
	s.jobSeq++
	c.Seq = s.jobSeq
	c.JobID = strconv.FormatUint(s.jobSeq, 16)
	c.PayoutAddress = s.coinbaseAddress
	return c, nil
}
