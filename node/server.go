// Package node is the HTTP intake process (§6): it accepts transactions,
// serves the chain for read access and peer polling, and exposes the
// atomic pending-tx drain the miner pulls from.
package node

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/yangfh2004/timerelease/chain"
	"github.com/yangfh2004/timerelease/elgamal"
	"github.com/yangfh2004/timerelease/logger"
	"github.com/yangfh2004/timerelease/store"
)

var log = logger.New(logger.SubsystemNode)

// Server is the node's HTTP surface. It owns the blob store handle and the
// pending pool; it keeps no chain in memory and loads the chain from the
// store on each request that needs it.
type Server struct {
	store   *store.Store
	pending *PendingPool
}

// NewServer wraps an already-open blob store.
func NewServer(s *store.Store) *Server {
	return &Server{store: s, pending: &PendingPool{}}
}

// Router builds the gorilla/mux route table for the five endpoints §6
// defines.
func (srv *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", srv.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/blocks", srv.handleBlocks).Methods(http.MethodGet)
	r.HandleFunc("/last", srv.handleLast).Methods(http.MethodGet)
	r.HandleFunc("/logs", srv.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/txion", srv.handleTxionGet).Methods(http.MethodGet).Queries("update", "{address}")
	r.HandleFunc("/txion", srv.handleTxionPost).Methods(http.MethodPost)
	return r
}

func (srv *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("This is a time-release blockchain node.\n"))
}

// blockView is the JSON shape /blocks and /last emit: hashes hex-encoded,
// transactions inlined as objects (§6).
type blockView struct {
	Height        uint64   `json:"height"`
	Timestamp     int64    `json:"timestamp"`
	PrevBlockHash string   `json:"prev_block_hash"`
	HeaderHash    string   `json:"header_hash"`
	PublicKey     string   `json:"public_key"`
	Nonce         string   `json:"nonce"`
	Solution      string   `json:"solution,omitempty"`
	Transactions  []txView `json:"transactions"`
}

// txView inlines the signature (base64) alongside the rest of the
// transaction: /blocks doubles as the peer-sync format minerproc's
// consensus check consumes, and chain.VerifyChain needs the signature to
// validate each transaction it did not originate (DESIGN.md, minerproc).
type txView struct {
	ID           uint64  `json:"id"`
	AddrFrom     string  `json:"addr_from"`
	AddrTo       string  `json:"addr_to"`
	Amount       uint64  `json:"amount"`
	Signature    string  `json:"signature,omitempty"`
	Cipher       string  `json:"cipher,omitempty"`
	ReleaseBlock *uint64 `json:"release_block_idx,omitempty"`
}

func toBlockView(b *chain.Block, txs []*chain.Transaction) blockView {
	view := blockView{
		Height:        b.Height,
		Timestamp:     b.Timestamp,
		PrevBlockHash: hexEncode(b.PrevHeaderHash[:]),
		HeaderHash:    hexEncode(b.HeaderHash[:]),
		PublicKey:     b.PubKey.Hex(),
		Nonce:         b.Nonce,
	}
	if b.Solution != nil {
		view.Solution = b.Solution.String()
	}
	for _, tx := range txs {
		tv := txView{ID: tx.ID, AddrFrom: tx.AddrFrom, AddrTo: tx.AddrTo, Amount: tx.Amount, ReleaseBlock: tx.ReleaseBlock}
		if tx.Signature != nil {
			tv.Signature = base64.StdEncoding.EncodeToString(tx.Signature)
		}
		if tx.Cipher != nil {
			tv.Cipher = tx.Cipher.Hex()
		}
		view.Transactions = append(view.Transactions, tv)
	}
	return view
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xF]
	}
	return string(out)
}

// handleBlocks serves GET /blocks?start=&end=, a half-open [start+1, end]
// range in 1-based store ids, equivalently heights [start, end) (§6).
func (srv *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	c, err := srv.store.LoadChain()
	if err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	start, end := parseRange(r, c)

	views := make([]blockView, 0)
	for _, b := range c.Blocks {
		if b.Height < start || b.Height >= end {
			continue
		}
		txs := txsFor(c, b)
		views = append(views, toBlockView(b, txs))
	}
	writeJSON(w, views)
}

func parseRange(r *http.Request, c *chain.Chain) (start, end uint64) {
	end = uint64(len(c.Blocks))
	if v := r.URL.Query().Get("start"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			start = n
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			end = n
		}
	}
	return start, end
}

func txsFor(c *chain.Chain, b *chain.Block) []*chain.Transaction {
	txs := make([]*chain.Transaction, 0, len(b.TxIDs))
	for _, id := range b.TxIDs {
		if tx, ok := c.Txs[id]; ok {
			txs = append(txs, tx)
		}
	}
	return txs
}

func (srv *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	c, err := srv.store.LoadChain()
	if err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	tip := c.Tip()
	if tip == nil {
		writeJSON(w, map[string]int{"height": 0})
		return
	}
	writeJSON(w, toBlockView(tip, txsFor(c, tip)))
}

func (srv *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := srv.store.Logs()
	if err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, logs)
}

// txionRequest is the POST /txion body (§6).
type txionRequest struct {
	AddrFrom        string  `json:"addr_from"`
	AddrTo          string  `json:"addr_to"`
	Amount          uint64  `json:"amount"`
	Signature       string  `json:"signature"`
	Cipher          string  `json:"cipher,omitempty"`
	ReleaseBlockIdx *uint64 `json:"release_block_idx,omitempty"`
}

func (srv *Server) handleTxionPost(w http.ResponseWriter, r *http.Request) {
	var req txionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Malformed request\n", http.StatusBadRequest)
		return
	}

	tx := &chain.Transaction{
		AddrFrom:     req.AddrFrom,
		AddrTo:       req.AddrTo,
		Amount:       req.Amount,
		ReleaseBlock: req.ReleaseBlockIdx,
	}
	if req.Signature != "" {
		sig, err := base64.StdEncoding.DecodeString(req.Signature)
		if err != nil {
			http.Error(w, "Malformed request\n", http.StatusBadRequest)
			return
		}
		tx.Signature = sig
	}
	if req.Cipher != "" {
		ct, err := elgamal.ParseCiphertextHex(req.Cipher)
		if err != nil {
			http.Error(w, "Malformed request\n", http.StatusBadRequest)
			return
		}
		tx.Cipher = ct
	}

	if err := tx.VerifySignature(); err != nil {
		srv.logEvent("txion", "rejected: wrong signature from "+tx.AddrFrom)
		w.Write([]byte("Transaction submission failed. Wrong signature\n"))
		return
	}

	if !tx.IsCoinbase() {
		c, err := srv.store.LoadChain()
		if err != nil {
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		tip := c.Tip()
		var height uint64
		if tip != nil {
			height = tip.Height
		}
		if chain.BalanceAt(c, tx.AddrFrom, height) < tx.Amount {
			srv.logEvent("txion", "rejected: balance not enough for "+tx.AddrFrom)
			w.Write([]byte("Transaction submission failed. Balance not enough\n"))
			return
		}
	}

	srv.pending.Append(tx)
	srv.logEvent("txion", "accepted tx from "+tx.AddrFrom)
	w.Write([]byte("Transaction submission successful\n"))
}

// handleTxionGet serves GET /txion?update=<miner_address>: an atomic drain
// of the pending pool, side-effecting the pool as it responds (§6).
func (srv *Server) handleTxionGet(w http.ResponseWriter, r *http.Request) {
	txs := srv.pending.Drain()
	writeJSON(w, txs)
}

func (srv *Server) logEvent(category, info string) {
	if err := srv.store.AppendLog(chain.LogEntry{Category: category, Timestamp: time.Now().Unix(), Info: info}); err != nil {
		log.Errorf("appending log entry: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encoding response: %v", err)
	}
}

// Pending exposes the pool to co-located callers. minerproc does not use
// it: the miner always drains pending transactions over GET /txion.
func (srv *Server) Pending() *PendingPool { return srv.pending }

// Store exposes the blob store handle to co-located callers.
func (srv *Server) Store() *store.Store { return srv.store }
