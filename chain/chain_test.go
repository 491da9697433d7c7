package chain

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/yangfh2004/timerelease/elgamal"
	"github.com/yangfh2004/timerelease/headerhash"
	"github.com/yangfh2004/timerelease/pollardrho"
)

func mineBlock(t *testing.T, parent *Block, txs []*Transaction) *Block {
	t.Helper()
	bitLength := parent.PubKey.BitLength
	pk := elgamal.ScheduleNext(parent.PubKey, bitLength)
	ids := make([]uint64, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	b := &Block{
		Height:         parent.Height + 1,
		Timestamp:      parent.Timestamp + 1,
		PrevHeaderHash: parent.HeaderHash,
		PubKey:         pk,
		TxIDs:          ids,
	}
	pfx := b.HeaderPrefix(txs)
	miner := pollardrho.NewMiner()
	res, err := miner.MineOne(pfx, pk, uint64(b.Height), time.Now().Add(30*time.Second), nil)
	if err != nil {
		t.Fatalf("mining failed: %v", err)
	}
	b.Nonce = res.Nonce
	b.Solution = res.Solution
	b.HeaderHash = b.ComputeHeaderHash(txs)
	return b
}

func tinyGenesis() *Block {
	pk := elgamal.GeneratePubKey(16, GenesisSeed)
	b := &Block{Height: 0, PubKey: pk}
	b.HeaderHash = b.ComputeHeaderHash(nil)
	return b
}

func TestVerifyBlockAcceptsValidChain(t *testing.T) {
	genesis := tinyGenesis()
	b1 := mineBlock(t, genesis, nil)
	if err := VerifyBlock(b1, genesis, nil); err != nil {
		t.Fatalf("expected valid block to verify, got %v: %s", err, spew.Sdump(b1))
	}
}

func TestVerifyBlockRejectsBadPrevHash(t *testing.T) {
	genesis := tinyGenesis()
	b1 := mineBlock(t, genesis, nil)
	b1.PrevHeaderHash[0] ^= 0xFF
	if err := VerifyBlock(b1, genesis, nil); err != ErrPrevHashMismatch {
		t.Fatalf("expected ErrPrevHashMismatch, got %v", err)
	}
}

func TestVerifyBlockRejectsMutatedBodyS6(t *testing.T) {
	// S6: reverify against a different tx set than the one mined against;
	// the stored header_hash and solution no longer correspond to the
	// recomputed header, so verification must fail.
	genesis := tinyGenesis()
	tx := &Transaction{ID: 1, AddrFrom: CoinbaseFrom, AddrTo: "miner", Amount: 100}
	b1 := mineBlock(t, genesis, []*Transaction{tx})
	mutated := &Transaction{ID: 1, AddrFrom: CoinbaseFrom, AddrTo: "miner", Amount: 999}
	if err := VerifyBlock(b1, genesis, []*Transaction{mutated}); err != ErrHeaderHashMismatch {
		t.Fatalf("expected ErrHeaderHashMismatch after body mutation, got %v", err)
	}
}

func TestBalanceAtCreditsCoinbase(t *testing.T) {
	genesis := tinyGenesis()
	c := NewChain()
	c.Append(genesis, nil)

	coinbase1 := &Transaction{ID: 1, AddrFrom: CoinbaseFrom, AddrTo: "miner", Amount: 100}
	b1 := mineBlock(t, genesis, []*Transaction{coinbase1})
	c.Append(b1, []*Transaction{coinbase1})

	if got := BalanceAt(c, "miner", 1); got != 100 {
		t.Fatalf("expected miner balance 100, got %d", got)
	}
}

func TestVerifySignatureRejectsTamperedSig(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("genkey: %v", err)
	}
	pub := priv.PubKey().SerializeCompressed()
	addr := base64.StdEncoding.EncodeToString(pub)

	tx := &Transaction{AddrFrom: addr, AddrTo: "bob", Amount: 5}
	sig, err := SignECDSA(priv, tx.CanonicalBody())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tx.Signature = sig
	if err := tx.VerifySignature(); err != nil {
		t.Fatalf("expected valid signature to verify, got %v", err)
	}

	tx.Signature[0] ^= 0xFF
	if err := tx.VerifySignature(); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature for S4, got %v", err)
	}
}

func TestHeaderHashOracleSanity(t *testing.T) {
	pfx := headerhash.NewPrefix(1, 1, headerhash.BodyHash("[]"), "x")
	a := pfx.Digest("1")
	b := pfx.Digest("2")
	if a == b {
		t.Fatalf("distinct nonces produced identical digests")
	}
}
