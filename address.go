package main

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// Ravencoin reuses Bitcoin's base58check encoding with its own version bytes:
// mainnet P2PKH addresses start with 'R', testnet with 'm' or 'n'.
var (
	ravencoinMainNetParams = chaincfg.Params{
		Name:             "ravencoin-mainnet",
		DefaultPort:      "8767",
		PubKeyHashAddrID: 60,
		ScriptHashAddrID: 122,
		PrivateKeyID:     128,
	}
	ravencoinTestNetParams = chaincfg.Params{
		Name:             "ravencoin-testnet",
		DefaultPort:      "18770",
		PubKeyHashAddrID: 111,
		ScriptHashAddrID: 196,
		PrivateKeyID:     239,
	}
)

func networkParams(testnet bool) *chaincfg.Params {
	if testnet {
		return &ravencoinTestNetParams
	}
	return &ravencoinMainNetParams
}

// workerAddress strips the ".worker" suffix miners append to their username.
func workerAddress(username string) string {
	addr, _, _ := strings.Cut(strings.TrimSpace(username), ".")
	return addr
}

// decodeP2PKHAddress checksum-validates a base58 address and returns its
// 20 byte public key hash. Only the network's pay-to-pubkey-hash version is
// accepted; script-hash and foreign-network addresses are rejected.
func decodeP2PKHAddress(addr string, params *chaincfg.Params) ([]byte, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("%w: empty address", errInvalidAddress)
	}
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid address", errInvalidAddress, addr)
	}
	if version != params.PubKeyHashAddrID {
		return nil, fmt.Errorf("%w: %s is not a p2pkh address", errInvalidAddress, addr)
	}
	if len(payload) != 20 {
		return nil, fmt.Errorf("%w: %s has a %d byte hash", errInvalidAddress, addr, len(payload))
	}
	return payload, nil
}

func p2pkhScript(pubKeyHash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pubKeyHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// payoutScriptForAddress returns the scriptPubKey paying addr.
func payoutScriptForAddress(addr string, params *chaincfg.Params) ([]byte, error) {
	hash, err := decodeP2PKHAddress(addr, params)
	if err != nil {
		return nil, err
	}
	return p2pkhScript(hash)
}
