package chain

import (
	"strings"
	"time"

	"github.com/yangfh2004/timerelease/elgamal"
	"github.com/yangfh2004/timerelease/hashcache"
	"github.com/yangfh2004/timerelease/headerhash"
	"github.com/yangfh2004/timerelease/pollardrho"
)

// headerCache memoizes header digests across repeated verification of the
// same block (each consensus poll re-verifies peer chains whose blocks it
// has already seen) (SPEC_FULL.md §2, replacing the original source's
// in-place static_hash caching).
var headerCache = hashcache.New(4096)

// Block is (height, timestamp, prev_header_hash, pubkey, nonce, solution,
// tx_ids, header_hash) (§3). header_hash is derivable from the other
// fields but stored for fast retrieval, matching the blob store schema in
// §6.
type Block struct {
	Height         uint64
	Timestamp      int64
	PrevHeaderHash [32]byte
	PubKey         *elgamal.PublicKey
	Nonce          string
	Solution       *pollardrho.Solution
	TxIDs          []uint64
	HeaderHash     [32]byte
}

// TxsCanonical renders the transaction set the way body_hash hashes it: a
// flat (non-Merkle) join of each transaction's canonical signing body.
// Binding to content rather than store-assigned ids matters because a
// candidate block's header (and thus the Pollard-rho walk bound to it) is
// built before mining succeeds, while store ids are only assigned once the
// block is actually persisted (DESIGN.md, chain).
func TxsCanonical(txs []*Transaction) string {
	parts := make([]string, len(txs))
	for i, tx := range txs {
		parts[i] = string(tx.CanonicalBody())
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// HeaderPrefix builds the varying-field-independent header preimage prefix
// for this block (§4.2). txs must be the same transaction set the block
// commits to, in order.
func (b *Block) HeaderPrefix(txs []*Transaction) *headerhash.Prefix {
	body := headerhash.BodyHash(TxsCanonical(txs))
	return headerhash.NewPrefix(b.Height, b.Timestamp, body, b.PubKey.Hex())
}

// ComputeHeaderHash recomputes header_hash from the block's other fields
// using its own nonce as the varying field (§4.2, §8 invariant 6).
func (b *Block) ComputeHeaderHash(txs []*Transaction) [32]byte {
	pfx := b.HeaderPrefix(txs)
	if digest, ok := headerCache.Get(pfx.Key(), b.Nonce); ok {
		return digest
	}
	digest := pfx.Digest(b.Nonce)
	headerCache.Put(pfx.Key(), b.Nonce, digest)
	return digest
}

// IsGenesis reports whether this is block 0.
func (b *Block) IsGenesis() bool {
	return b.Height == 0
}

// GenesisSeed and GenesisBitLength are the fixed parameters S1 and §3 use to
// construct block 0's pubkey: generate_pubkey(32, 0xFFFFFFFFFFFF).
const (
	GenesisBitLength = 32
	GenesisSeed      = 0xFFFFFFFFFFFF
)

// NewGenesisBlock builds block 0: empty txs, the fixed seed pubkey, no
// nonce, no solution (§3).
func NewGenesisBlock() *Block {
	pk := elgamal.GeneratePubKey(GenesisBitLength, GenesisSeed)
	b := &Block{
		Height:    0,
		Timestamp: 0,
		PubKey:    pk,
		TxIDs:     nil,
	}
	b.HeaderHash = b.ComputeHeaderHash(nil)
	return b
}

// NewTimestamp is the single place candidate assembly reads wall-clock
// time, so tests can observe it is the only non-deterministic input to a
// candidate block.
func NewTimestamp() int64 {
	return time.Now().Unix()
}
