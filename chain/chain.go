package chain

import (
	"errors"

	"github.com/yangfh2004/timerelease/elgamal"
	"github.com/yangfh2004/timerelease/pollardrho"
)

// Chain is an ordered sequence of blocks, block[0] the genesis (§3).
type Chain struct {
	Blocks []*Block
	// Txs indexes every transaction this chain has ever included, by ID,
	// so BalanceAt can do its full-history scan (§9: preserved O(N·txs),
	// no UTXO/account map).
	Txs map[uint64]*Transaction
}

// NewChain returns an empty chain, ready for a genesis block to be
// appended.
func NewChain() *Chain {
	return &Chain{Txs: make(map[uint64]*Transaction)}
}

// Tip returns the last block, or nil if the chain is empty.
func (c *Chain) Tip() *Block {
	if len(c.Blocks) == 0 {
		return nil
	}
	return c.Blocks[len(c.Blocks)-1]
}

// Append adds a block (and its transactions) to the chain without
// re-verifying it; callers must call VerifyBlock first for any block not
// produced locally.
func (c *Chain) Append(b *Block, txs []*Transaction) {
	c.Blocks = append(c.Blocks, b)
	for _, tx := range txs {
		c.Txs[tx.ID] = tx
	}
}

// Sentinel verification errors (§7).
var (
	ErrHeightMismatch     = errors.New("chain: block height is not parent height + 1")
	ErrPrevHashMismatch   = errors.New("chain: prev_header_hash does not match parent's header_hash")
	ErrPubKeyMismatch     = errors.New("chain: pubkey does not match scheduled pubkey")
	ErrHeaderHashMismatch = errors.New("chain: stored header_hash does not recompute")
	ErrNoSolution         = errors.New("chain: block has no solution")
	ErrSolutionInvalid    = errors.New("chain: solution does not verify against pubkey")
)

// VerifyBlock checks b against its parent per §4.6 steps 1-5 (tx/balance
// checks, step 6, are performed by VerifyChain since they need the running
// chain state). txs is the transaction set b.TxIDs resolves to.
func VerifyBlock(b, parent *Block, txs []*Transaction) error {
	if b.Height != parent.Height+1 {
		return ErrHeightMismatch
	}
	if b.PrevHeaderHash != parent.HeaderHash {
		return ErrPrevHashMismatch
	}
	expected := elgamal.ScheduleNext(parent.PubKey, b.PubKey.BitLength)
	if expected.P.Cmp(b.PubKey.P) != 0 || expected.G.Cmp(b.PubKey.G) != 0 || expected.H.Cmp(b.PubKey.H) != 0 {
		return ErrPubKeyMismatch
	}
	if b.ComputeHeaderHash(txs) != b.HeaderHash {
		return ErrHeaderHashMismatch
	}
	if b.Solution == nil {
		return ErrNoSolution
	}
	priv, err := b.Solution.ToPrivateKey(b.PubKey)
	if err != nil {
		return ErrSolutionInvalid
	}
	if !pollardrho.Verify(priv.X, b.PubKey) {
		return ErrSolutionInvalid
	}
	return nil
}

// VerifyChain validates every block in chain against its predecessor, plus
// the tx-level checks §4.6 step 6 requires: every non-coinbase tx verifies
// its signature, and its sender's running balance (computed over the chain
// *as validated so far*) covers the amount.
func VerifyChain(c *Chain) error {
	if len(c.Blocks) == 0 {
		return nil
	}
	genesis := c.Blocks[0]
	if genesis.Height != 0 {
		return ErrHeightMismatch
	}
	running := NewChain()
	running.Append(genesis, txsForBlock(c, genesis))

	for i := 1; i < len(c.Blocks); i++ {
		b := c.Blocks[i]
		txs := txsForBlock(c, b)
		if err := VerifyBlock(b, c.Blocks[i-1], txs); err != nil {
			return err
		}
		for _, tx := range txs {
			if err := tx.VerifySignature(); err != nil {
				return err
			}
			if !tx.IsCoinbase() {
				bal := BalanceAt(running, tx.AddrFrom, b.Height)
				if bal < tx.Amount {
					return ErrInsufficientBalance
				}
			}
		}
		running.Append(b, txs)
	}
	return nil
}

func txsForBlock(c *Chain, b *Block) []*Transaction {
	txs := make([]*Transaction, 0, len(b.TxIDs))
	for _, id := range b.TxIDs {
		if tx, ok := c.Txs[id]; ok {
			txs = append(txs, tx)
		}
	}
	return txs
}

// BalanceAt computes addr's balance as of (and including) upToHeight by
// scanning every transaction in the chain (§9 Open Questions: acknowledged
// O(N·txs), a maintained account map is explicitly out of the core
// contract).
func BalanceAt(c *Chain, addr string, upToHeight uint64) uint64 {
	var bal uint64
	for _, b := range c.Blocks {
		if b.Height > upToHeight {
			break
		}
		for _, id := range b.TxIDs {
			tx, ok := c.Txs[id]
			if !ok {
				continue
			}
			if tx.AddrTo == addr {
				bal += tx.Amount
			}
			if tx.AddrFrom == addr {
				bal -= tx.Amount
			}
		}
	}
	return bal
}

// LogEntry is one row of the logs table (§6; categories supplemented from
// the original source per SPEC_FULL.md §4: "mining", "txion", "peer").
type LogEntry struct {
	Category  string
	Timestamp int64
	Info      string
}
