package chain

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/yangfh2004/timerelease/elgamal"
)

// CoinbaseFrom is the sentinel addr_from value on the single per-block
// minting transaction (§3).
const CoinbaseFrom = "network"

// CoinbaseReward is the amount minted to the miner's address per block.
// The original source (miner.py) hardcodes this reward (SPEC_FULL.md §4).
const CoinbaseReward = 100

// Transaction is (addr_from, addr_to, amount, cipher?, release_block?)
// plus the signature over its canonical body (§3).
type Transaction struct {
	ID           uint64              `json:"id,omitempty"`
	AddrFrom     string              `json:"addr_from"`
	AddrTo       string              `json:"addr_to"`
	Amount       uint64              `json:"amount"`
	Signature    []byte              `json:"-"`
	Cipher       *elgamal.Ciphertext `json:"-"`
	ReleaseBlock *uint64             `json:"release_block_idx,omitempty"`
	BlockHeight  uint64              `json:"block_height,omitempty"`
}

// IsCoinbase reports whether this is the per-block minting transaction.
func (t *Transaction) IsCoinbase() bool {
	return t.AddrFrom == CoinbaseFrom
}

// CanonicalBody renders the signing input: compact JSON with no whitespace
// and the stable key order addr_from, addr_to, amount (§3, §6). This is NOT
// encoding/json.Marshal output (Go does not guarantee struct field order in
// the wire format needed here), so it is built by hand.
func (t *Transaction) CanonicalBody() []byte {
	return []byte(fmt.Sprintf(`{"addr_from":%q,"addr_to":%q,"amount":%d}`,
		t.AddrFrom, t.AddrTo, t.Amount))
}

// DecodeAddr decodes a base64-encoded raw SECP256k1 verifying-key address.
func DecodeAddr(addr string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(addr)
}

// ErrInvalidSignature is returned (and surfaced as the documented plain-text
// message) when a non-coinbase transaction's signature does not verify
// (§7).
var ErrInvalidSignature = errors.New("invalid signature")

// ErrInsufficientBalance is returned when addr_from's running balance is
// less than amount (§7).
var ErrInsufficientBalance = errors.New("insufficient balance")

// VerifySignature checks t's signature against its canonical body using the
// external verify_ecdsa predicate. Coinbase transactions carry no
// signature and always pass.
func (t *Transaction) VerifySignature() error {
	if t.IsCoinbase() {
		return nil
	}
	pubKeyBytes, err := DecodeAddr(t.AddrFrom)
	if err != nil {
		return ErrInvalidSignature
	}
	if !VerifyECDSA(pubKeyBytes, t.Signature, t.CanonicalBody()) {
		return ErrInvalidSignature
	}
	return nil
}
