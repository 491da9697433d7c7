package minerproc

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/yangfh2004/timerelease/chain"
	"github.com/yangfh2004/timerelease/elgamal"
	"github.com/yangfh2004/timerelease/node"
	"github.com/yangfh2004/timerelease/pollardrho"
	"github.com/yangfh2004/timerelease/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNextBitLengthOnlyAdjustsOnTermBoundary(t *testing.T) {
	l := &Loop{}
	parent := &chain.Block{Height: 1, PubKey: &elgamal.PublicKey{BitLength: 16}}
	if got := l.nextBitLength(parent); got != 16 {
		t.Fatalf("expected no adjustment off a Term boundary, got %d", got)
	}

	onBoundary := &chain.Block{Height: elgamal.Term, PubKey: &elgamal.PublicKey{BitLength: 16}}
	first := l.nextBitLength(onBoundary)
	if first != 16 {
		t.Fatalf("expected first boundary hit to just seed lastAdjustAt, got %d", first)
	}
	if l.lastAdjustAt.IsZero() {
		t.Fatalf("expected lastAdjustAt to be seeded")
	}

	// Force the next call to look like it took far longer than BlockTime,
	// which must push difficulty down by one.
	l.lastAdjustAt = time.Now().Add(-10 * time.Minute)
	second := l.nextBitLength(onBoundary)
	if second != 15 {
		t.Fatalf("expected difficulty to drop by one after a slow window, got %d", second)
	}
}

// mineTinyBlock mines a real, tiny block on top of parent so the test
// exercises the actual Pollard-rho walk, not a fake fixture.
func mineTinyBlock(t *testing.T, parent *chain.Block, txs []*chain.Transaction) *chain.Block {
	t.Helper()
	pk := elgamal.ScheduleNext(parent.PubKey, parent.PubKey.BitLength)
	ids := make([]uint64, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	b := &chain.Block{
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

func TestFetchPeerChainRoundTripsAndVerifies(t *testing.T) {
	s := openTestStore(t)
	genesis, _, _ := s.LastBlock()

	coinbase := &chain.Transaction{AddrFrom: chain.CoinbaseFrom, AddrTo: "miner", Amount: chain.CoinbaseReward}
	b1 := mineTinyBlock(t, genesis, []*chain.Transaction{coinbase})
	if _, err := s.AppendBlock(b1, []*chain.Transaction{coinbase}); err != nil {
		t.Fatalf("append block: %v", err)
	}

	srv := httptest.NewServer(node.NewServer(s).Router())
	defer srv.Close()

	l := &Loop{HTTPClient: srv.Client()}
	peerChain, err := l.fetchPeerChain(srv.URL)
	if err != nil {
		t.Fatalf("fetchPeerChain: %v", err)
	}
	if len(peerChain.Blocks) != 2 {
		t.Fatalf("expected 2 blocks (genesis + 1), got %d", len(peerChain.Blocks))
	}
	if err := chain.VerifyChain(peerChain); err != nil {
		t.Fatalf("expected fetched peer chain to verify, got %v", err)
	}
}

func TestAdoptChainReplacesLocalStore(t *testing.T) {
	local := openTestStore(t)
	genesis, _, _ := local.LastBlock()

	peerChain := chain.NewChain()
	peerChain.Append(genesis, nil)
	coinbase := &chain.Transaction{ID: 1, AddrFrom: chain.CoinbaseFrom, AddrTo: "miner", Amount: chain.CoinbaseReward}
	b1 := mineTinyBlock(t, genesis, []*chain.Transaction{coinbase})
	peerChain.Append(b1, []*chain.Transaction{coinbase})

	l := &Loop{Store: local}
	l.adoptChain(peerChain)

	got, err := local.LoadChain()
	if err != nil {
		t.Fatalf("load chain: %v", err)
	}
	if len(got.Blocks) != 2 {
		t.Fatalf("expected local store to adopt 2 blocks, got %d", len(got.Blocks))
	}
}
