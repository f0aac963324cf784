package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// CandidateBlock is an immutable snapshot of the block being mined. Every
// derived field is computed once in assembleCandidate from the same inputs
// and never patched afterwards.
type CandidateBlock struct {
	JobID string
	// Seq increases with every candidate; sessions use it to drop a job
	// older than one they already sent.
	Seq           uint64
	Height        int64
	Version       uint32
	Bits          []byte
	BitsHex       string
	PrevHash      []byte
	Timestamp     int64
	Target        string
	CoinbaseValue int64
	PayoutAddress string

	// Transactions[0] is the coinbase in witness form.
	Transactions [][]byte
	MerkleRoot   [32]byte
	// PartialHeader is the header without nonce and mix hash, stored
	// most-significant field first; reverse it for the wire layout.
	PartialHeader []byte
	// HeaderHash is doubleHash(reverse(PartialHeader)) in hashing order.
	// Its String form is the byte-reversed value miners receive.
	HeaderHash chainhash.Hash
	SeedHash   [32]byte

	CreatedAt time.Time
}

// partialHeader lays out height ‖ bits ‖ time ‖ reverse(merkle) ‖ prevhash ‖
// version with the integers big-endian.
func partialHeader(height int64, bits []byte, timestamp int64, merkle [32]byte, prevHash []byte, version uint32) []byte {
	out := make([]byte, 0, 4+len(bits)+4+32+len(prevHash)+4)
	out = appendUint32BE(out, uint32(height))
	out = append(out, bits...)
	out = appendUint32BE(out, uint32(timestamp))
	out = append(out, reverseBytes(merkle[:])...)
	out = append(out, prevHash...)
	out = appendUint32BE(out, version)
	return out
}

// assembleCandidate places the coinbase ahead of the mempool transactions
// and derives the merkle root, header, header hash and seed hash.
func assembleCandidate(tpl *blockTemplate, coinbase, coinbaseNoWitness []byte, txs []templateTx, timestamp int64) *CandidateBlock {
	transactions := make([][]byte, 0, len(txs)+1)
	ids := make([][32]byte, 0, len(txs)+1)
	transactions = append(transactions, coinbase)
	ids = append(ids, doubleHash(coinbaseNoWitness))
	for _, tx := range txs {
		transactions = append(transactions, tx.Data)
		ids = append(ids, tx.ID)
	}

	merkle := merkleRoot(ids)
	header := partialHeader(tpl.Height, tpl.Bits, timestamp, merkle, tpl.PrevHash, tpl.Version)

	return &CandidateBlock{
		Height:        tpl.Height,
		Version:       tpl.Version,
		Bits:          tpl.Bits,
		BitsHex:       tpl.BitsHex,
		PrevHash:      tpl.PrevHash,
		Timestamp:     timestamp,
		Target:        tpl.Target,
		CoinbaseValue: tpl.CoinbaseValue,
		Transactions:  transactions,
		MerkleRoot:    merkle,
		PartialHeader: header,
		HeaderHash:    chainhash.Hash(doubleHash(reverseBytes(header))),
		SeedHash:      seedHashForHeight(tpl.Height),
		CreatedAt:     time.Now(),
	}
}

// HeaderHashHex is the header hash in the byte order miners expect.
func (c *CandidateBlock) HeaderHashHex() string {
	return c.HeaderHash.String()
}

func (c *CandidateBlock) SeedHashHex() string {
	return hex.EncodeToString(c.SeedHash[:])
}

// blockBytes splices a miner's nonce and mix hash into the header and
// appends the transactions. nonce and mix are given as the miner prints them
// and are byte-reversed into place.
func (c *CandidateBlock) blockBytes(nonce, mix []byte) []byte {
	size := len(c.PartialHeader) + len(nonce) + len(mix) + 9
	for _, tx := range c.Transactions {
		size += len(tx)
	}
	var buf bytes.Buffer
	buf.Grow(size)
	buf.Write(reverseBytes(c.PartialHeader))
	buf.Write(reverseBytes(nonce))
	buf.Write(reverseBytes(mix))
	buf.Write(encodeVarInt(int64(len(c.Transactions))))
	for _, tx := range c.Transactions {
		buf.Write(tx)
	}
	return buf.Bytes()
}

// notifyParams is the mining.notify parameter list for this candidate.
func (c *CandidateBlock) notifyParams(clean bool) []any {
	return []any{c.JobID, c.HeaderHashHex(), c.SeedHashHex(), c.Target, clean, c.Height, c.BitsHex}
}

func (c *CandidateBlock) String() string {
	return fmt.Sprintf("job %s height %d txs %d header %s", c.JobID, c.Height, len(c.Transactions), c.HeaderHashHex())
}
