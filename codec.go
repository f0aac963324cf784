package main

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// encodeVarInt returns the node's CompactSize encoding of n. Multi-byte
// payloads are little-endian. n must not be negative.
func encodeVarInt(n int64) []byte {
	if n < 0 {
		panic(fmt.Sprintf("encodeVarInt: negative length %d", n))
	}
	return appendVarInt(nil, uint64(n))
}

func appendVarInt(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		dst = append(dst, 0xfd)
		return binary.LittleEndian.AppendUint16(dst, uint16(n))
	case n <= 0xffffffff:
		dst = append(dst, 0xfe)
		return binary.LittleEndian.AppendUint32(dst, uint32(n))
	default:
		dst = append(dst, 0xff)
		return binary.LittleEndian.AppendUint64(dst, n)
	}
}

func writeUint32LE(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeUint64LE(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func appendUint32BE(dst []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, v)
}

// encodeScriptPush returns the push-data prefix for an n byte payload using
// the smallest of direct, OP_PUSHDATA1, OP_PUSHDATA2 and OP_PUSHDATA4.
func encodeScriptPush(n int) []byte {
	if n < 0 {
		panic(fmt.Sprintf("encodeScriptPush: negative length %d", n))
	}
	switch {
	case n < 0x4c:
		return []byte{byte(n)}
	case n <= 0xff:
		return []byte{0x4c, byte(n)}
	case n <= 0xffff:
		return binary.LittleEndian.AppendUint16([]byte{0x4d}, uint16(n))
	default:
		return binary.LittleEndian.AppendUint32([]byte{0x4e}, uint32(n))
	}
}

// merkleRoot folds transaction ids pairwise, duplicating the last id on odd
// levels, exactly as the node does.
func merkleRoot(leaves [][32]byte) [32]byte {
	switch len(leaves) {
	case 0:
		return doubleHash(nil)
	case 1:
		return leaves[0]
	}
	level := append([][32]byte(nil), leaves...)
	var pair [64]byte
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			copy(pair[:32], level[i][:])
			copy(pair[32:], level[i+1][:])
			next = append(next, doubleHash(pair[:]))
		}
		level = next
	}
	return level[0]
}

// reverseBytes returns a reversed copy of b.
func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

// decodeHexField decodes a node or miner supplied hex string, tolerating a
// 0x prefix. want > 0 enforces an exact decoded length.
func decodeHexField(name, s string, want int) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if want > 0 && len(b) != want {
		return nil, fmt.Errorf("%s: expected %d bytes, got %d", name, want, len(b))
	}
	return b, nil
}

func targetFromBits(bits []byte) (*big.Int, error) {
	if len(bits) != 4 {
		return nil, fmt.Errorf("invalid bits length %d", len(bits))
	}
	exp := int(bits[0])
	mantissa := new(big.Int).SetBytes(bits[1:])
	if exp <= 3 {
		return mantissa.Rsh(mantissa, uint(8*(3-exp))), nil
	}
	return mantissa.Lsh(mantissa, uint(8*(exp-3))), nil
}

var diff1Target = func() *big.Int {
	n, _ := new(big.Int).SetString("00000000FFFF0000000000000000000000000000000000000000000000000000", 16)
	return n
}()

// difficultyFromBits converts compact bits to the node's difficulty figure.
// Only used for logs and metrics.
func difficultyFromBits(bits []byte) float64 {
	target, err := targetFromBits(bits)
	if err != nil || target.Sign() == 0 {
		return 0
	}
	f := new(big.Float).SetPrec(256).SetInt(diff1Target)
	d := new(big.Float).SetPrec(256).SetInt(target)
	f.Quo(f, d)
	val, _ := f.Float64()
	return val
}
