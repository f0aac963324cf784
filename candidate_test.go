package main

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const testBits = "1b0404cb"

func testAddress(version byte, fill byte) string {
	hash := bytes.Repeat([]byte{fill}, 20)
	return base58.CheckEncode(hash, version)
}

func testTarget(t *testing.T, bitsHex string) string {
	t.Helper()
	bits, err := hex.DecodeString(bitsHex)
	if err != nil {
		t.Fatalf("decode bits: %v", err)
	}
	target, err := targetFromBits(bits)
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	return fmt.Sprintf("%064x", target)
}

// testMempoolTx builds a small spendable-looking transaction and returns it
// in the shape getblocktemplate reports.
func testMempoolTx(t *testing.T, seed byte) GBTTransaction {
	t.Helper()
	tx := wire.NewMsgTx(2)
	var prev chainhash.Hash
	prev[0] = seed
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), []byte{0x51}, nil))
	tx.AddTxOut(wire.NewTxOut(int64(seed)*1000, []byte{0x51}))
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("serialize tx: %v", err)
	}
	return GBTTransaction{
		Data: hex.EncodeToString(buf.Bytes()),
		Txid: tx.TxHash().String(),
	}
}

func testTemplateResult(t *testing.T, height int64, txs ...GBTTransaction) GetBlockTemplateResult {
	t.Helper()
	raw := GetBlockTemplateResult{
		Bits:                     testBits,
		Height:                   height,
		Target:                   testTarget(t, testBits),
		Version:                  0x30000000,
		Previous:                 strings.Repeat("ab", 31) + "cd",
		CoinbaseValue:            250000000000,
		DefaultWitnessCommitment: "6a24aa21a9ed" + strings.Repeat("11", 32),
		Transactions:             txs,
	}
	raw.CoinbaseAux.Flags = ""
	return raw
}

func testTemplate(t *testing.T, height int64, txs ...GBTTransaction) *blockTemplate {
	t.Helper()
	tpl, err := parseBlockTemplate(testTemplateResult(t, height, txs...))
	if err != nil {
		t.Fatalf("parseBlockTemplate: %v", err)
	}
	return tpl
}

func TestEncodeHeightBytes(t *testing.T) {
	tests := []struct {
		height int64
		want   string
	}{
		{0, "00"},
		{1, "01"},
		{100, "64"},
		{255, "ff"},
		{256, "0001"},
		{2_000_000, "80841e"},
	}
	for _, tc := range tests {
		if got := hex.EncodeToString(encodeHeightBytes(tc.height)); got != tc.want {
			t.Errorf("encodeHeightBytes(%d) = %s, want %s", tc.height, got, tc.want)
		}
	}
	if got := hex.EncodeToString(heightPush(0)); got != "0100" {
		t.Fatalf("heightPush(0) = %s, want 0100", got)
	}
	if got := hex.EncodeToString(heightPush(2_000_000)); got != "0380841e" {
		t.Fatalf("heightPush(2000000) = %s", got)
	}
}

func TestCoinbaseScriptSigLayout(t *testing.T) {
	got := coinbaseScriptSig(100, nil, "/tag/")
	want := append([]byte{0x01, 0x64, 0x00}, "/tag/"...)
	if !bytes.Equal(got, want) {
		t.Fatalf("scriptSig without flags = %x, want %x", got, want)
	}
	got = coinbaseScriptSig(100, []byte{0xaa, 0xbb}, "")
	if !bytes.Equal(got, []byte{0x01, 0x64, 0xaa, 0xbb}) {
		t.Fatalf("scriptSig with flags = %x", got)
	}
}

func TestBuildCoinbaseParsesWithWire(t *testing.T) {
	addr := testAddress(ravencoinMainNetParams.PubKeyHashAddrID, 0x42)
	commitment, _ := hex.DecodeString("6a24aa21a9ed" + strings.Repeat("11", 32))
	withWitness, noWitness, err := buildCoinbase(100, []byte{0x0c}, addr, 5000, commitment, "/rvn/", &ravencoinMainNetParams)
	if err != nil {
		t.Fatalf("buildCoinbase: %v", err)
	}

	var wtx wire.MsgTx
	if err := wtx.Deserialize(bytes.NewReader(withWitness)); err != nil {
		t.Fatalf("deserialize witness form: %v", err)
	}
	if !wtx.HasWitness() {
		t.Fatal("witness form has no witness")
	}
	if len(wtx.TxIn) != 1 || len(wtx.TxOut) != 2 {
		t.Fatalf("inputs/outputs = %d/%d, want 1/2", len(wtx.TxIn), len(wtx.TxOut))
	}
	in := wtx.TxIn[0]
	if in.PreviousOutPoint.Hash != (chainhash.Hash{}) || in.PreviousOutPoint.Index != 0xffffffff {
		t.Fatalf("coinbase outpoint = %v", in.PreviousOutPoint)
	}
	if in.Sequence != 0xffffffff {
		t.Fatalf("sequence = %x", in.Sequence)
	}
	if !bytes.HasPrefix(in.SignatureScript, []byte{0x01, 0x64, 0x0c}) || !bytes.HasSuffix(in.SignatureScript, []byte("/rvn/")) {
		t.Fatalf("scriptSig = %x", in.SignatureScript)
	}
	if len(in.Witness) != 1 || !bytes.Equal(in.Witness[0], make([]byte, 32)) {
		t.Fatalf("witness = %x, want one 32 byte zero item", in.Witness)
	}

	wantScript, err := payoutScriptForAddress(addr, &ravencoinMainNetParams)
	if err != nil {
		t.Fatalf("payout script: %v", err)
	}
	if wtx.TxOut[0].Value != 5000 || !bytes.Equal(wtx.TxOut[0].PkScript, wantScript) {
		t.Fatalf("payout output = %d %x", wtx.TxOut[0].Value, wtx.TxOut[0].PkScript)
	}
	if wtx.TxOut[1].Value != 0 || !bytes.Equal(wtx.TxOut[1].PkScript, commitment) {
		t.Fatalf("commitment output = %d %x", wtx.TxOut[1].Value, wtx.TxOut[1].PkScript)
	}
	if wtx.LockTime != 0 || wtx.Version != 1 {
		t.Fatalf("version/locktime = %d/%d", wtx.Version, wtx.LockTime)
	}

	var stripped wire.MsgTx
	if err := stripped.DeserializeNoWitness(bytes.NewReader(noWitness)); err != nil {
		t.Fatalf("deserialize stripped form: %v", err)
	}
	var buf bytes.Buffer
	if err := wtx.SerializeNoWitness(&buf); err != nil {
		t.Fatalf("serialize no witness: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), noWitness) {
		t.Fatal("stripped form differs from wire's no-witness serialization")
	}
	if got := chainhash.Hash(doubleHash(noWitness)); got != wtx.TxHash() {
		t.Fatalf("txid %s, wire TxHash %s", got, wtx.TxHash())
	}
}

func TestBuildCoinbaseDeterministic(t *testing.T) {
	addr := testAddress(ravencoinMainNetParams.PubKeyHashAddrID, 1)
	a1, b1, err := buildCoinbase(7, nil, addr, 1, []byte{0x6a}, "x", &ravencoinMainNetParams)
	if err != nil {
		t.Fatal(err)
	}
	a2, b2, err := buildCoinbase(7, nil, addr, 1, []byte{0x6a}, "x", &ravencoinMainNetParams)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a1, a2) || !bytes.Equal(b1, b2) {
		t.Fatal("coinbase differs for identical inputs")
	}
}

func TestBuildCoinbaseRejectsBadInput(t *testing.T) {
	addr := testAddress(ravencoinMainNetParams.PubKeyHashAddrID, 1)
	if _, _, err := buildCoinbase(-1, nil, addr, 1, nil, "", &ravencoinMainNetParams); err == nil {
		t.Fatal("expected error for negative height")
	}
	if _, _, err := buildCoinbase(1, nil, addr, -1, nil, "", &ravencoinMainNetParams); err == nil {
		t.Fatal("expected error for negative value")
	}
	if _, _, err := buildCoinbase(1, nil, addr, 1, nil, strings.Repeat("x", 100), &ravencoinMainNetParams); err == nil {
		t.Fatal("expected error for oversized scriptSig")
	}
	testnet := testAddress(ravencoinTestNetParams.PubKeyHashAddrID, 1)
	if _, _, err := buildCoinbase(1, nil, testnet, 1, nil, "", &ravencoinMainNetParams); err == nil {
		t.Fatal("expected error for testnet address on mainnet")
	}
}

func TestSeedHashEpochs(t *testing.T) {
	zero := [32]byte{}
	if got := seedHashForHeight(0); got != zero {
		t.Fatalf("epoch 0 seed = %x, want zeros", got)
	}
	if got := seedHashForHeight(kawpowEpochLength - 1); got != zero {
		t.Fatalf("last block of epoch 0 seed = %x", got)
	}
	const keccakOfZeros = "290decd9548b62a8d60345a988386fc84ba6bc95484008f6362f93160ef3e563"
	if got := seedHashForHeight(kawpowEpochLength); hex.EncodeToString(got[:]) != keccakOfZeros {
		t.Fatalf("epoch 1 seed = %x, want %s", got, keccakOfZeros)
	}
	e2 := seedHashForHeight(2 * kawpowEpochLength)
	// Going backwards must recompute from scratch, not reuse the cache.
	if got := seedHashForHeight(kawpowEpochLength + 5); hex.EncodeToString(got[:]) != keccakOfZeros {
		t.Fatalf("epoch 1 seed after epoch 2 = %x", got)
	}
	if e2 == zero || hex.EncodeToString(e2[:]) == keccakOfZeros {
		t.Fatal("epoch 2 seed did not advance")
	}
}

// TestCandidateEndToEndHeight100 builds a full candidate for height 100,
// splices a nonce and mix hash in, and checks the resulting block byte for
// byte against the inputs.
func TestCandidateEndToEndHeight100(t *testing.T) {
	mempool := testMempoolTx(t, 9)
	tpl := testTemplate(t, 100, mempool)
	addr := testAddress(ravencoinMainNetParams.PubKeyHashAddrID, 0x42)

	build := func() *CandidateBlock {
		withWitness, noWitness, err := buildCoinbase(tpl.Height, tpl.Flags, addr, tpl.CoinbaseValue, tpl.WitnessCommitment, "/t/", &ravencoinMainNetParams)
		if err != nil {
			t.Fatalf("buildCoinbase: %v", err)
		}
		txs, err := tpl.decodeTransactions()
		if err != nil {
			t.Fatalf("decodeTransactions: %v", err)
		}
		return assembleCandidate(tpl, withWitness, noWitness, txs, 1700000420)
	}
	c := build()
	if again := build(); again.HeaderHash != c.HeaderHash || !bytes.Equal(again.PartialHeader, c.PartialHeader) {
		t.Fatal("candidate is not reproducible from identical inputs")
	}
	if len(c.PartialHeader) != 80 {
		t.Fatalf("partial header length = %d, want 80", len(c.PartialHeader))
	}
	if got := chainhash.Hash(doubleHash(reverseBytes(c.PartialHeader))); got != c.HeaderHash {
		t.Fatal("header hash does not match partial header")
	}
	if c.SeedHash != ([32]byte{}) {
		t.Fatal("height 100 should use the epoch 0 seed")
	}

	nonce, _ := hex.DecodeString("0011223344556677")
	mix := bytes.Repeat([]byte{0x5a}, 31)
	mix = append(mix, 0x01)
	block := c.blockBytes(nonce, mix)

	if v := binary.LittleEndian.Uint32(block[0:4]); v != tpl.Version {
		t.Fatalf("header version = %x, want %x", v, tpl.Version)
	}
	if !bytes.Equal(block[4:36], reverseBytes(tpl.PrevHash)) {
		t.Fatal("prev hash not in internal byte order")
	}
	if !bytes.Equal(block[36:68], c.MerkleRoot[:]) {
		t.Fatal("merkle root misplaced")
	}
	if ts := binary.LittleEndian.Uint32(block[68:72]); ts != 1700000420 {
		t.Fatalf("timestamp = %d", ts)
	}
	if !bytes.Equal(block[72:76], reverseBytes(tpl.Bits)) {
		t.Fatal("bits misplaced")
	}
	if h := binary.LittleEndian.Uint32(block[76:80]); h != 100 {
		t.Fatalf("height = %d", h)
	}
	if !bytes.Equal(block[80:88], reverseBytes(nonce)) || !bytes.Equal(block[88:120], reverseBytes(mix)) {
		t.Fatal("nonce or mix hash not spliced in reversed")
	}

	r := bytes.NewReader(block[120:])
	n, err := wire.ReadVarInt(r, 0)
	if err != nil || n != 2 {
		t.Fatalf("tx count = %d, %v", n, err)
	}
	var coinbase, tx wire.MsgTx
	if err := coinbase.Deserialize(r); err != nil {
		t.Fatalf("coinbase: %v", err)
	}
	if err := tx.Deserialize(r); err != nil {
		t.Fatalf("mempool tx: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("%d trailing bytes after transactions", r.Len())
	}
	if tx.TxHash().String() != mempool.Txid {
		t.Fatalf("mempool tx id %s, want %s", tx.TxHash(), mempool.Txid)
	}
	cbID, txID := coinbase.TxHash(), tx.TxHash()
	if want := merkleRoot([][32]byte{cbID, txID}); want != c.MerkleRoot {
		t.Fatal("merkle root does not commit to the block's transactions")
	}

	params := c.notifyParams(true)
	if params[0] != c.JobID || params[1] != c.HeaderHash.String() || params[4] != true || params[5] != int64(100) || params[6] != testBits {
		t.Fatalf("notify params = %v", params)
	}
}
