// Package minerproc is the miner process: it drains pending transactions
// from the node over HTTP, assembles a candidate block, runs the
// Pollard-rho walk against a deadline, and on timeout polls peers for a
// longer chain before retrying (§4.6, §4.3, §5).
package minerproc

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/yangfh2004/timerelease/chain"
	"github.com/yangfh2004/timerelease/elgamal"
	"github.com/yangfh2004/timerelease/logger"
	"github.com/yangfh2004/timerelease/pollardrho"
	"github.com/yangfh2004/timerelease/store"
)

var log = logger.New(logger.SubsystemMiner)

// Loop owns the miner's mining state (§9: explicit MinerState owned by the
// miner loop, no process-wide singletons).
type Loop struct {
	Store        *store.Store
	MinerAddress string
	NodeURL      string // base URL of this miner's own node, for draining pending txs
	Peers        []string
	HTTPClient   *http.Client
	miner        *pollardrho.Miner

	// lastAdjustAt tracks wall-clock time across Term-block windows, the
	// way the original source's calculate_difficulty globals do (§4.1,
	// §9: preserved oscillating behavior, just no longer a no-op).
	lastAdjustAt time.Time
}

// NewLoop builds a Loop with sensible defaults.
func NewLoop(s *store.Store, minerAddress, nodeURL string, peers []string) *Loop {
	return &Loop{
		Store:        s,
		MinerAddress: minerAddress,
		NodeURL:      nodeURL,
		Peers:        peers,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		miner:        pollardrho.NewMiner(),
	}
}

// RunForever repeatedly assembles and mines candidate blocks until ctx's
// stop flag is set. Each call to mineOnce is a checkpoint: on deadline it
// consults peers, then retries with a freshly timestamped candidate
// (SPEC_FULL.md §4: matches the original source's retry-with-fresh-
// timestamp behavior rather than resuming walk state).
func (l *Loop) RunForever(stop *atomic.Bool) {
	for {
		if stop != nil && stop.Load() {
			return
		}
		if err := l.mineOnce(stop); err != nil {
			log.Errorf("mining round: %v", err)
		}
	}
}

func (l *Loop) mineOnce(stop *atomic.Bool) error {
	c, err := l.Store.LoadChain()
	if err != nil {
		return fmt.Errorf("minerproc: loading chain: %w", err)
	}
	parent := c.Tip()
	if parent == nil {
		return fmt.Errorf("minerproc: empty chain, missing genesis")
	}

	pending, err := l.drainPending()
	if err != nil {
		log.Warnf("draining pending txs: %v", err)
	}

	coinbase := &chain.Transaction{
		AddrFrom: chain.CoinbaseFrom,
		AddrTo:   l.MinerAddress,
		Amount:   chain.CoinbaseReward,
	}
	txs := append([]*chain.Transaction{coinbase}, pending...)

	bitLength := l.nextBitLength(parent)
	pubkey := elgamal.ScheduleNext(parent.PubKey, bitLength)

	candidate := &chain.Block{
		Height:         parent.Height + 1,
		Timestamp:      chain.NewTimestamp(),
		PrevHeaderHash: parent.HeaderHash,
		PubKey:         pubkey,
	}

	deadline := time.Now().Add(elgamal.BlockTime * time.Second)
	pfx := candidate.HeaderPrefix(txs)

	res, err := l.miner.MineOne(pfx, pubkey, uint64(candidate.Timestamp), deadline, stop)
	if err == pollardrho.ErrDeadline {
		l.consensusCheck()
		return nil
	}
	if err != nil {
		return err
	}

	candidate.Nonce = res.Nonce
	candidate.Solution = res.Solution
	candidate.HeaderHash = candidate.ComputeHeaderHash(txs)

	if _, err := l.Store.AppendBlock(candidate, txs); err != nil {
		return fmt.Errorf("minerproc: persisting block %d: %w", candidate.Height, err)
	}
	l.logEvent("mining", fmt.Sprintf("block %d found", candidate.Height))
	return nil
}

// nextBitLength mirrors the original source's term-gated retarget: only
// every elgamal.Term blocks does the difficulty move, by ±1 depending on
// whether the previous window took more or less than BlockTime (§4.1).
func (l *Loop) nextBitLength(parent *chain.Block) int {
	if parent.Height%elgamal.Term != 0 {
		return parent.PubKey.BitLength
	}
	if l.lastAdjustAt.IsZero() {
		l.lastAdjustAt = time.Now()
		return parent.PubKey.BitLength
	}
	elapsed := time.Since(l.lastAdjustAt).Seconds()
	l.lastAdjustAt = time.Now()
	return elgamal.DifficultyAdjust(parent.PubKey.BitLength, elapsed)
}

func (l *Loop) drainPending() ([]*chain.Transaction, error) {
	url := l.NodeURL + "/txion?update=" + l.MinerAddress
	resp, err := l.HTTPClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var txs []*chain.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// consensusCheck implements the longest-chain rule (§4.6, §8 property 8):
// query every peer's /blocks, validate each returned chain, and adopt the
// longest one strictly longer than ours. Ties keep our own chain. This
// replaces the original source's validate_blockchain stub (return True)
// with real verification via chain.VerifyChain (§9 Open Questions).
func (l *Loop) consensusCheck() {
	local, err := l.Store.LoadChain()
	if err != nil {
		log.Errorf("loading local chain for consensus check: %v", err)
		return
	}
	best := local
	bestLen := len(local.Blocks)

	for _, peer := range l.Peers {
		peerChain, err := l.fetchPeerChain(peer)
		if err != nil {
			log.Debugf("peer %s unreachable: %v", peer, err)
			continue // PeerUnreachable: skipped silently (§7)
		}
		if err := chain.VerifyChain(peerChain); err != nil {
			log.Debugf("peer %s chain rejected: %v", peer, err)
			continue // ChainRejected: discarded silently (§7)
		}
		if len(peerChain.Blocks) > bestLen {
			best = peerChain
			bestLen = len(peerChain.Blocks)
		}
	}

	if best != local {
		l.adoptChain(best)
		l.logEvent("peer", fmt.Sprintf("adopted longer peer chain, height %d", bestLen-1))
	}
}

// peerTxView and peerBlockView mirror node.txView/node.blockView's JSON
// shape exactly: /blocks is the one chain representation the system has,
// so it doubles as the peer-sync wire format (DESIGN.md, minerproc). Unlike the
// human-facing view, nothing here is thrown away: every field
// chain.VerifyChain needs (signature, solution, raw hashes) survives the
// round trip.
type peerTxView struct {
	ID           uint64  `json:"id"`
	AddrFrom     string  `json:"addr_from"`
	AddrTo       string  `json:"addr_to"`
	Amount       uint64  `json:"amount"`
	Signature    string  `json:"signature,omitempty"`
	Cipher       string  `json:"cipher,omitempty"`
	ReleaseBlock *uint64 `json:"release_block_idx,omitempty"`
}

type peerBlockView struct {
	Height        uint64       `json:"height"`
	Timestamp     int64        `json:"timestamp"`
	PrevBlockHash string       `json:"prev_block_hash"`
	HeaderHash    string       `json:"header_hash"`
	PublicKey     string       `json:"public_key"`
	Nonce         string       `json:"nonce"`
	Solution      string       `json:"solution,omitempty"`
	Transactions  []peerTxView `json:"transactions"`
}

// fetchPeerChain pulls a peer's full chain over GET /blocks and decodes it
// into a verifiable *chain.Chain.
func (l *Loop) fetchPeerChain(baseURL string) (*chain.Chain, error) {
	resp, err := l.HTTPClient.Get(baseURL + "/blocks")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	var views []peerBlockView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return nil, err
	}
	c := chain.NewChain()
	for _, v := range views {
		b, txs, err := blockFromPeerView(v)
		if err != nil {
			return nil, fmt.Errorf("minerproc: decoding peer block %d: %w", v.Height, err)
		}
		c.Append(b, txs)
	}
	return c, nil
}

func blockFromPeerView(v peerBlockView) (*chain.Block, []*chain.Transaction, error) {
	pk, err := elgamal.ParsePublicKeyHex(v.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	b := &chain.Block{Height: v.Height, Timestamp: v.Timestamp, PubKey: pk, Nonce: v.Nonce}

	prevBytes, err := hex.DecodeString(v.PrevBlockHash)
	if err != nil {
		return nil, nil, fmt.Errorf("prev_block_hash: %w", err)
	}
	copy(b.PrevHeaderHash[:], prevBytes)

	hashBytes, err := hex.DecodeString(v.HeaderHash)
	if err != nil {
		return nil, nil, fmt.Errorf("header_hash: %w", err)
	}
	copy(b.HeaderHash[:], hashBytes)

	if v.Solution != "" {
		sol, err := pollardrho.ParseSolution(v.Solution)
		if err != nil {
			return nil, nil, fmt.Errorf("solution: %w", err)
		}
		b.Solution = sol
	}

	txs := make([]*chain.Transaction, 0, len(v.Transactions))
	ids := make([]uint64, 0, len(v.Transactions))
	for _, tv := range v.Transactions {
		tx := &chain.Transaction{
			ID:           tv.ID,
			AddrFrom:     tv.AddrFrom,
			AddrTo:       tv.AddrTo,
			Amount:       tv.Amount,
			ReleaseBlock: tv.ReleaseBlock,
			BlockHeight:  v.Height,
		}
		if tv.Signature != "" {
			sig, err := base64.StdEncoding.DecodeString(tv.Signature)
			if err != nil {
				return nil, nil, fmt.Errorf("tx %d signature: %w", tv.ID, err)
			}
			tx.Signature = sig
		}
		if tv.Cipher != "" {
			ct, err := elgamal.ParseCiphertextHex(tv.Cipher)
			if err != nil {
				return nil, nil, fmt.Errorf("tx %d cipher: %w", tv.ID, err)
			}
			tx.Cipher = ct
		}
		txs = append(txs, tx)
		ids = append(ids, tv.ID)
	}
	b.TxIDs = ids
	return b, txs, nil
}

// adoptChain replaces the local store's authoritative view with a verified,
// strictly longer peer chain (§4.6, §8 property 8). The store commits this
// atomically as a single batch; the single-writer assumption (§5) means
// there is no concurrent AppendBlock to race against.
func (l *Loop) adoptChain(c *chain.Chain) {
	if err := l.Store.ReplaceChain(c); err != nil {
		log.Errorf("adopting peer chain: %v", err)
	}
}

func (l *Loop) logEvent(category, info string) {
	if err := l.Store.AppendLog(chain.LogEntry{Category: category, Timestamp: time.Now().Unix(), Info: info}); err != nil {
		log.Errorf("appending log entry: %v", err)
	}
}
