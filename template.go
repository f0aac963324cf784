package main

import (
	"fmt"
	"math/big"
	"strings"
)

// GetBlockTemplateResult is the subset of the node's getblocktemplate reply
// the proxy consumes.
type GetBlockTemplateResult struct {
	Bits                     string           `json:"bits"`
	Height                   int64            `json:"height"`
	Target                   string           `json:"target"`
	Version                  int64            `json:"version"`
	Previous                 string           `json:"previousblockhash"`
	CoinbaseValue            int64            `json:"coinbasevalue"`
	DefaultWitnessCommitment string           `json:"default_witness_commitment"`
	Transactions             []GBTTransaction `json:"transactions"`
	CoinbaseAux              struct {
		Flags string `json:"flags"`
	} `json:"coinbaseaux"`
}

type GBTTransaction struct {
	Data string `json:"data"`
	Txid string `json:"txid"`
}

// blockTemplate is a validated template. Transaction payloads stay hex
// encoded until a rebuild actually needs them; most ticks only compare the
// transaction count.
type blockTemplate struct {
	Height            int64
	Version           uint32
	Bits              []byte
	BitsHex           string
	PrevHash          []byte // as the node prints it
	Target            string
	CoinbaseValue     int64
	WitnessCommitment []byte
	Flags             []byte
	Transactions      []GBTTransaction
}

type templateTx struct {
	Data []byte
	ID   [32]byte // internal byte order
}

var getBlockTemplateParams = []any{map[string]any{
	"capabilities": []string{"coinbasetxn", "workid", "coinbase/append"},
	"rules":        []string{"segwit"},
}}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errMalformedTemplate, fmt.Sprintf(format, args...))
}

// parseBlockTemplate validates the fields the candidate builder needs.
func parseBlockTemplate(raw GetBlockTemplateResult) (*blockTemplate, error) {
	if raw.Height <= 0 {
		return nil, malformed("height %d", raw.Height)
	}
	if raw.Version < 0 || raw.Version > 0xffffffff {
		return nil, malformed("version %d out of range", raw.Version)
	}
	if raw.CoinbaseValue < 0 {
		return nil, malformed("coinbasevalue %d", raw.CoinbaseValue)
	}
	bits, err := decodeHexField("bits", raw.Bits, 4)
	if err != nil {
		return nil, malformed("%v", err)
	}
	prev, err := decodeHexField("previousblockhash", raw.Previous, 32)
	if err != nil {
		return nil, malformed("%v", err)
	}
	if err := validateTarget(bits, raw.Target); err != nil {
		return nil, malformed("%v", err)
	}
	if strings.TrimSpace(raw.DefaultWitnessCommitment) == "" {
		return nil, malformed("missing default_witness_commitment")
	}
	commitment, err := decodeHexField("default_witness_commitment", raw.DefaultWitnessCommitment, 0)
	if err != nil {
		return nil, malformed("%v", err)
	}
	var flags []byte
	if strings.TrimSpace(raw.CoinbaseAux.Flags) != "" {
		if flags, err = decodeHexField("coinbaseaux.flags", raw.CoinbaseAux.Flags, 0); err != nil {
			return nil, malformed("%v", err)
		}
	}
	return &blockTemplate{
		Height:            raw.Height,
		Version:           uint32(raw.Version),
		Bits:              bits,
		BitsHex:           strings.ToLower(strings.TrimSpace(raw.Bits)),
		PrevHash:          prev,
		Target:            strings.ToLower(strings.TrimSpace(raw.Target)),
		CoinbaseValue:     raw.CoinbaseValue,
		WitnessCommitment: commitment,
		Flags:             flags,
		Transactions:      raw.Transactions,
	}, nil
}

// validateTarget checks that the advertised target is hex and agrees with
// the compact bits; miners receive it verbatim in set_target and notify.
func validateTarget(bits []byte, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("missing target")
	}
	want, err := targetFromBits(bits)
	if err != nil {
		return err
	}
	if want.Sign() <= 0 {
		return fmt.Errorf("bits produced non-positive target")
	}
	got, ok := new(big.Int).SetString(target, 16)
	if !ok {
		return fmt.Errorf("invalid target %q", target)
	}
	if got.Cmp(want) != 0 {
		return fmt.Errorf("bits target %s mismatches template target %s", want.Text(16), got.Text(16))
	}
	return nil
}

// decodeTransactions decodes mempool transactions; txids arrive in display
// order and are reversed for the merkle tree.
func (t *blockTemplate) decodeTransactions() ([]templateTx, error) {
	out := make([]templateTx, len(t.Transactions))
	for i, tx := range t.Transactions {
		data, err := decodeHexField(fmt.Sprintf("tx %d data", i), tx.Data, 0)
		if err != nil {
			return nil, malformed("%v", err)
		}
		if len(data) == 0 {
			return nil, malformed("tx %d data empty", i)
		}
		id, err := decodeHexField(fmt.Sprintf("tx %d txid", i), tx.Txid, 32)
		if err != nil {
			return nil, malformed("%v", err)
		}
		out[i].Data = data
		copy(out[i].ID[:], reverseBytes(id))
	}
	return out, nil
}
