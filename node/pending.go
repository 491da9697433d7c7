package node

import (
	"sync"

	"github.com/yangfh2004/timerelease/chain"
)

// PendingPool is the node's in-memory buffer of submitted-but-unmined
// transactions. Append and Drain are atomic with respect to each other
// (§5, §8 property 7): a submission that lands strictly before a drain
// call is guaranteed to be in that drain's result.
type PendingPool struct {
	mu  sync.Mutex
	txs []*chain.Transaction
}

// Append adds tx to the pending pool.
func (p *PendingPool) Append(tx *chain.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = append(p.txs, tx)
}

// Drain atomically removes and returns every currently pending
// transaction. Insertion order need not be stable across drains (§5).
func (p *PendingPool) Drain() []*chain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.txs
	p.txs = nil
	return out
}

// Len reports how many transactions are currently pending (for tests and
// debugging, not part of the external contract).
func (p *PendingPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}
