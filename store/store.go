// Package store is the blob store: the "tabular store addressed by
// integer keys" spec.md marks as an external collaborator (§1), expressed
// here as a single goleveldb database with three logical tables
// (blockchain, transactions, logs), each keyed by a big-endian uint64
// auto-increment id within its own key prefix (§6).
package store

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/yangfh2004/timerelease/chain"
	"github.com/yangfh2004/timerelease/elgamal"
	"github.com/yangfh2004/timerelease/pollardrho"
)

const (
	prefixBlock = "blk:"
	prefixTx    = "tx:"
	prefixLog   = "log:"
	prefixMeta  = "meta:"

	metaBlockSeq = prefixMeta + "block_seq"
	metaTxSeq    = prefixMeta + "tx_seq"
	metaLogSeq   = prefixMeta + "log_seq"
)

// Store is the blob store handle. Block ids are 1-based internally, so
// id == height + 1 (genesis is id=1, height=0); callers outside this
// package only ever see Height.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) the goleveldb database at path and
// bootstraps the genesis block if the store is empty (SPEC_FULL.md §4:
// the original source special-cases an empty store the same way).
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	s := &Store{db: db}
	if _, ok, err := s.LastBlock(); err != nil {
		db.Close()
		return nil, err
	} else if !ok {
		genesis := chain.NewGenesisBlock()
		if _, err := s.AppendBlock(genesis, nil); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// blockRecord is the on-disk shape of the blockchain table (§6): header
// hash and prev hash as raw bytes, pubkey/solution as the hex/decimal text
// forms elgamal and pollardrho already define.
type blockRecord struct {
	Height        uint64   `json:"height"`
	Timestamp     int64    `json:"timestamp"`
	HeaderHash    []byte   `json:"header_hash"`
	Difficulty    int      `json:"difficulty"`
	PrevBlockHash []byte   `json:"prev_block_hash"`
	PublicKey     string   `json:"public_key"`
	Nonce         string   `json:"nonce"`
	Solution      string   `json:"solution,omitempty"`
	Transactions  []uint64 `json:"transactions"`
}

func toRecord(b *chain.Block) *blockRecord {
	var sol string
	if b.Solution != nil {
		sol = b.Solution.String()
	}
	return &blockRecord{
		Height:        b.Height,
		Timestamp:     b.Timestamp,
		HeaderHash:    b.HeaderHash[:],
		Difficulty:    b.PubKey.BitLength,
		PrevBlockHash: b.PrevHeaderHash[:],
		PublicKey:     b.PubKey.Hex(),
		Nonce:         b.Nonce,
		Solution:      sol,
		Transactions:  b.TxIDs,
	}
}

func fromRecord(r *blockRecord) (*chain.Block, error) {
	pk, err := elgamal.ParsePublicKeyHex(r.PublicKey)
	if err != nil {
		return nil, err
	}
	b := &chain.Block{
		Height:    r.Height,
		Timestamp: r.Timestamp,
		PubKey:    pk,
		Nonce:     r.Nonce,
		TxIDs:     r.Transactions,
	}
	copy(b.HeaderHash[:], r.HeaderHash)
	copy(b.PrevHeaderHash[:], r.PrevBlockHash)
	if r.Solution != "" {
		sol, err := pollardrho.ParseSolution(r.Solution)
		if err != nil {
			return nil, err
		}
		b.Solution = sol
	}
	return b, nil
}

// AppendBlock persists b (and its transactions, each independently keyed)
// and returns the store id assigned to b. Apart from the genesis bootstrap
// in Open, only the miner process calls this (§5: write contention limited
// to block-append and tx-append, both performed only by the miner).
//
// Transaction ids are assigned here, at persistence time, and written back
// into b.TxIDs before the block record is built: header_hash was already
// computed from the transactions' content (chain.TxsCanonical), never from
// these ids, so overwriting b.TxIDs now is safe and is what lets /blocks
// and BalanceAt look transactions back up by store id later.
func (s *Store) AppendBlock(b *chain.Block, txs []*chain.Transaction) (uint64, error) {
	id, err := s.nextSeq(metaBlockSeq)
	if err != nil {
		return 0, err
	}
	batch := new(leveldb.Batch)
	ids := make([]uint64, len(txs))
	for i, tx := range txs {
		tx.BlockHeight = b.Height
		txID, err := s.putTxInBatch(batch, tx)
		if err != nil {
			return 0, err
		}
		tx.ID = txID
		ids[i] = txID
	}
	b.TxIDs = ids

	rec := toRecord(b)
	buf, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	batch.Put(blockKey(id), buf)
	if err := s.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("store: writing block %d: %w", b.Height, err)
	}
	return id, nil
}

// txRecord is the on-disk shape of the transactions table (§6).
type txRecord struct {
	AddrFrom     string  `json:"addr_from"`
	AddrTo       string  `json:"addr_to"`
	Amount       uint64  `json:"amount"`
	Signature    string  `json:"signature,omitempty"`
	Cipher       string  `json:"cipher,omitempty"`
	ReleaseBlock *uint64 `json:"release_block_idx,omitempty"`
	BlockHeight  uint64  `json:"block_height"`
}

func toTxRecord(tx *chain.Transaction) txRecord {
	rec := txRecord{
		AddrFrom:     tx.AddrFrom,
		AddrTo:       tx.AddrTo,
		Amount:       tx.Amount,
		ReleaseBlock: tx.ReleaseBlock,
		BlockHeight:  tx.BlockHeight,
	}
	if tx.Signature != nil {
		rec.Signature = base64.StdEncoding.EncodeToString(tx.Signature)
	}
	if tx.Cipher != nil {
		rec.Cipher = tx.Cipher.Hex()
	}
	return rec
}

func (s *Store) putTxInBatch(batch *leveldb.Batch, tx *chain.Transaction) (uint64, error) {
	id, err := s.nextSeq(metaTxSeq)
	if err != nil {
		return 0, err
	}
	buf, err := json.Marshal(toTxRecord(tx))
	if err != nil {
		return 0, err
	}
	batch.Put(txKey(id), buf)
	return id, nil
}

// AppendLog records one logs-table row (§6, SPEC_FULL.md §4 categories).
func (s *Store) AppendLog(entry chain.LogEntry) error {
	id, err := s.nextSeq(metaLogSeq)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Put(logKey(id), buf, nil)
}

// Logs returns every logs-table row in insertion order.
func (s *Store) Logs() ([]chain.LogEntry, error) {
	var out []chain.LogEntry
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixLog)), nil)
	defer iter.Release()
	for iter.Next() {
		var entry chain.LogEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, iter.Error()
}

// LastBlock returns the highest-height block, or ok=false if the store has
// no blocks yet.
func (s *Store) LastBlock() (*chain.Block, bool, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixBlock)), nil)
	defer iter.Release()
	if !iter.Last() {
		return nil, false, iter.Error()
	}
	var rec blockRecord
	if err := json.Unmarshal(iter.Value(), &rec); err != nil {
		return nil, false, err
	}
	b, err := fromRecord(&rec)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// LoadChain reconstructs the full in-memory Chain from the store,
// including every transaction referenced by each block (§6 /blocks
// endpoint's "transactions inlined").
func (s *Store) LoadChain() (*chain.Chain, error) {
	c := chain.NewChain()
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixBlock)), nil)
	defer iter.Release()
	for iter.Next() {
		var rec blockRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, err
		}
		b, err := fromRecord(&rec)
		if err != nil {
			return nil, err
		}
		txs, err := s.loadTxs(b.TxIDs)
		if err != nil {
			return nil, err
		}
		c.Append(b, txs)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) loadTxs(ids []uint64) ([]*chain.Transaction, error) {
	txs := make([]*chain.Transaction, 0, len(ids))
	for _, id := range ids {
		buf, err := s.db.Get(txKey(id), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec txRecord
		if err := json.Unmarshal(buf, &rec); err != nil {
			return nil, err
		}
		tx := &chain.Transaction{
			ID:           id,
			AddrFrom:     rec.AddrFrom,
			AddrTo:       rec.AddrTo,
			Amount:       rec.Amount,
			ReleaseBlock: rec.ReleaseBlock,
			BlockHeight:  rec.BlockHeight,
		}
		if rec.Signature != "" {
			sig, err := base64.StdEncoding.DecodeString(rec.Signature)
			if err != nil {
				return nil, err
			}
			tx.Signature = sig
		}
		if rec.Cipher != "" {
			ct, err := elgamal.ParseCiphertextHex(rec.Cipher)
			if err != nil {
				return nil, err
			}
			tx.Cipher = ct
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// ReplaceChain discards every persisted block and transaction and
// rewrites the store from c (§4.6, §8 property 8: adopting a verified,
// strictly longer peer chain). c's own transaction ids are carried over
// verbatim: header_hash binds to transaction content, never to these ids,
// so there is nothing to renumber.
func (s *Store) ReplaceChain(c *chain.Chain) error {
	batch := new(leveldb.Batch)
	if err := s.clearPrefix(batch, prefixBlock); err != nil {
		return err
	}
	if err := s.clearPrefix(batch, prefixTx); err != nil {
		return err
	}
	var maxTxID uint64
	for i, b := range c.Blocks {
		rec := toRecord(b)
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		batch.Put(blockKey(uint64(i+1)), buf)
		for _, id := range b.TxIDs {
			tx, ok := c.Txs[id]
			if !ok {
				continue
			}
			txBuf, err := json.Marshal(toTxRecord(tx))
			if err != nil {
				return err
			}
			batch.Put(txKey(id), txBuf)
			if id > maxTxID {
				maxTxID = id
			}
		}
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: replacing chain: %w", err)
	}
	return s.resetSeqCounters(uint64(len(c.Blocks)), maxTxID)
}

// clearPrefix stages a delete for every key under prefix into batch.
func (s *Store) clearPrefix(batch *leveldb.Batch, prefix string) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	return iter.Error()
}

// resetSeqCounters points the block/tx auto-increment counters at the
// highest id ReplaceChain just wrote, so the next AppendBlock continues
// from there instead of colliding with the adopted chain.
func (s *Store) resetSeqCounters(blockCount, maxTxID uint64) error {
	blockSeq := make([]byte, 8)
	binary.BigEndian.PutUint64(blockSeq, blockCount)
	if err := s.db.Put([]byte(metaBlockSeq), blockSeq, nil); err != nil {
		return err
	}
	txSeq := make([]byte, 8)
	binary.BigEndian.PutUint64(txSeq, maxTxID)
	return s.db.Put([]byte(metaTxSeq), txSeq, nil)
}

func (s *Store) nextSeq(metaKey string) (uint64, error) {
	buf, err := s.db.Get([]byte(metaKey), nil)
	var id uint64
	if err == nil {
		id = binary.BigEndian.Uint64(buf) + 1
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return 0, err
	} else {
		id = 1
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, id)
	if err := s.db.Put([]byte(metaKey), out, nil); err != nil {
		return 0, err
	}
	return id, nil
}

func blockKey(id uint64) []byte { return seqKey(prefixBlock, id) }
func txKey(id uint64) []byte    { return seqKey(prefixTx, id) }
func logKey(id uint64) []byte   { return seqKey(prefixLog, id) }

func seqKey(prefix string, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	return buf
}
