// Package headerhash implements the double-SHA256 header oracle the miner
// and the verifier both drive: one SHA256^2 digest per probe, parameterized
// by whichever field is "varying" for the caller (the current walk element
// at each step of the mining walk, the block's nonce when its header_hash
// is computed or verified).
package headerhash

import (
	"crypto/sha256"
	"math/big"
	"strconv"
)

// Prefix is the portion of the canonical header preimage that does not
// depend on the varying field. It is computed once per candidate block; the
// miner appends a different varying-field suffix on every probe.
//
// Canonical preimage = str(height) || str(timestamp) || body_hash ||
// str(pubkey) || str(varying_field) (§4.2).
type Prefix struct {
	bytes []byte
}

// BodyHash is SHA256(str(txs)): a flat hash, not a Merkle root (§4.2,
// Non-goals: no Merkle trees).
func BodyHash(txsCanonical string) [32]byte {
	return sha256.Sum256([]byte(txsCanonical))
}

// NewPrefix assembles the varying-field-independent portion of the header
// preimage.
func NewPrefix(height uint64, timestamp int64, bodyHash [32]byte, pubkeyStr string) *Prefix {
	buf := make([]byte, 0, 64+len(pubkeyStr))
	buf = strconv.AppendUint(buf, height, 10)
	buf = strconv.AppendInt(buf, timestamp, 10)
	buf = append(buf, bodyHash[:]...)
	buf = append(buf, pubkeyStr...)
	return &Prefix{bytes: buf}
}

// Key returns a stable string form of the prefix suitable as a cache key
// (hashcache.Cache indexes on (prefix, varying) string pairs).
func (pfx *Prefix) Key() string {
	return string(pfx.bytes)
}

// Digest computes SHA256(SHA256(prefix || varying)) — the header hash for
// one probe of the oracle.
func (pfx *Prefix) Digest(varying string) [32]byte {
	first := sha256.New()
	first.Write(pfx.bytes)
	first.Write([]byte(varying))
	inner := first.Sum(nil)
	return sha256.Sum256(inner)
}

// IntModP reduces a header digest to an integer mod p by reading the digest
// as a little-endian, signed two's-complement integer. This exact reduction
// is a protocol-defining choice (Design Notes §9): reproduce it byte-exactly
// or chains diverge, including its documented sign-flip artefact in
// elgamal.AllowSignFlip.
func IntModP(digest [32]byte, p *big.Int) *big.Int {
	// Interpret as little-endian by reversing byte order, then as signed
	// two's complement (top bit of the resulting big-endian word is sign).
	be := make([]byte, len(digest))
	for i, b := range digest {
		be[len(digest)-1-i] = b
	}
	v := new(big.Int).SetBytes(be)
	if be[0]&0x80 != 0 {
		// Negative: two's complement over 256 bits.
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(digest)*8))
		v.Sub(v, mod)
	}
	return v.Mod(v, p)
}

// HashAsIntModP is the oracle entry point the miner and verifier call: the
// header hash for the given varying-field value, reduced mod p (§4.2).
func (pfx *Prefix) HashAsIntModP(varying string, p *big.Int) *big.Int {
	return IntModP(pfx.Digest(varying), p)
}
