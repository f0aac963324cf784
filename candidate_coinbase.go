package main

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

const (
	coinbaseTxVersion  = 1
	coinbaseSequence   = 0xffffffff
	coinbaseOutputsLen = 2
)

// encodeHeightBytes returns height as minimal little-endian bytes with
// trailing zero bytes stripped. Height zero becomes a single zero byte.
func encodeHeightBytes(height int64) []byte {
	out := make([]byte, 0, 8)
	for v := uint64(height); v != 0; v >>= 8 {
		out = append(out, byte(v))
	}
	if len(out) == 0 {
		out = append(out, 0)
	}
	return out
}

// heightPush is the BIP34 style prefix of the coinbase scriptSig: a length
// byte followed by encodeHeightBytes(height).
func heightPush(height int64) []byte {
	h := encodeHeightBytes(height)
	return append(encodeScriptPush(len(h)), h...)
}

// coinbaseScriptSig is heightPush ‖ flags ‖ tag. A node that sends no
// coinbaseaux flags gets a single zero byte in their place.
func coinbaseScriptSig(height int64, flags []byte, tag string) []byte {
	script := heightPush(height)
	if len(flags) > 0 {
		script = append(script, flags...)
	} else {
		script = append(script, 0)
	}
	return append(script, tag...)
}

// buildCoinbase returns the coinbase in witness form (marker, flag and a
// single 32 byte zero reserved value) and in the stripped form used for the
// txid. Both serializations are deterministic for identical inputs.
func buildCoinbase(height int64, flags []byte, payoutAddress string, amount int64, witnessCommitment []byte, tag string, params *chaincfg.Params) ([]byte, []byte, error) {
	if height < 0 {
		return nil, nil, fmt.Errorf("coinbase height cannot be negative: %d", height)
	}
	if amount < 0 {
		return nil, nil, fmt.Errorf("coinbase value cannot be negative: %d", amount)
	}
	payoutScript, err := payoutScriptForAddress(payoutAddress, params)
	if err != nil {
		return nil, nil, err
	}

	scriptSig := coinbaseScriptSig(height, flags, tag)
	if len(scriptSig) > 100 {
		return nil, nil, fmt.Errorf("coinbase scriptSig too long: %d bytes", len(scriptSig))
	}

	var vin bytes.Buffer
	vin.WriteByte(1)
	vin.Write(make([]byte, 32))
	writeUint32LE(&vin, 0xffffffff)
	vin.Write(encodeVarInt(int64(len(scriptSig))))
	vin.Write(scriptSig)
	writeUint32LE(&vin, coinbaseSequence)

	var vout bytes.Buffer
	vout.WriteByte(coinbaseOutputsLen)
	writeUint64LE(&vout, uint64(amount))
	vout.Write(encodeVarInt(int64(len(payoutScript))))
	vout.Write(payoutScript)
	writeUint64LE(&vout, 0)
	vout.Write(encodeVarInt(int64(len(witnessCommitment))))
	vout.Write(witnessCommitment)

	var withWitness bytes.Buffer
	writeUint32LE(&withWitness, coinbaseTxVersion)
	withWitness.Write([]byte{0x00, 0x01})
	withWitness.Write(vin.Bytes())
	withWitness.Write(vout.Bytes())
	// One input, one witness item: the 32 byte reserved value.
	withWitness.Write([]byte{0x01, 0x20})
	withWitness.Write(make([]byte, 32))
	writeUint32LE(&withWitness, 0)

	var noWitness bytes.Buffer
	writeUint32LE(&noWitness, coinbaseTxVersion)
	noWitness.Write(vin.Bytes())
	noWitness.Write(vout.Bytes())
	writeUint32LE(&noWitness, 0)

	return withWitness.Bytes(), noWitness.Bytes(), nil
}
