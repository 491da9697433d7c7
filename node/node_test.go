package node

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/yangfh2004/timerelease/chain"
	"github.com/yangfh2004/timerelease/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewServer(s)
}

func TestIndexHandler(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLastHandlerReturnsGenesis(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/last", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var view blockView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v; body=%s", err, rec.Body.String())
	}
	if view.Height != 0 {
		t.Fatalf("expected genesis height 0, got %d", view.Height)
	}
}

func TestTxionSubmitRejectsInsufficientBalance(t *testing.T) {
	srv := newTestServer(t)

	priv, _ := secp256k1.GeneratePrivateKey()
	addrFrom := base64.StdEncoding.EncodeToString(priv.PubKey().SerializeCompressed())
	tx := &chain.Transaction{AddrFrom: addrFrom, AddrTo: "bob", Amount: 5}
	sig, err := chain.SignECDSA(priv, tx.CanonicalBody())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	body := txionRequest{
		AddrFrom:  addrFrom,
		AddrTo:    "bob",
		Amount:    5,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}
	buf, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/txion", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	// Sender has no balance yet: expect rejection, not a crash.
	if rec.Body.String() == "Transaction submission successful\n" {
		t.Fatalf("expected balance rejection for a sender with no funds:\n%s", spew.Sdump(rec.Body.String()))
	}
}

func TestTxionGetDrainIsAtomic(t *testing.T) {
	srv := newTestServer(t)
	srv.pending.Append(&chain.Transaction{AddrFrom: chain.CoinbaseFrom, AddrTo: "miner", Amount: 100})

	req := httptest.NewRequest(http.MethodGet, "/txion?update=minerAddr", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var txs []chain.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &txs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 drained tx, got %d", len(txs))
	}
	if srv.pending.Len() != 0 {
		t.Fatalf("expected pending pool to be empty after drain")
	}
}

func TestTxionTamperedSignatureRejectedS4(t *testing.T) {
	srv := newTestServer(t)
	priv, _ := secp256k1.GeneratePrivateKey()
	addrFrom := base64.StdEncoding.EncodeToString(priv.PubKey().SerializeCompressed())
	tx := &chain.Transaction{AddrFrom: addrFrom, AddrTo: "bob", Amount: 5}
	sig, _ := chain.SignECDSA(priv, tx.CanonicalBody())
	sig[0] ^= 0xFF

	body := txionRequest{
		AddrFrom: addrFrom, AddrTo: "bob", Amount: 5,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/txion", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Body.String() != "Transaction submission failed. Wrong signature\n" {
		t.Fatalf("expected wrong-signature rejection, got %q", rec.Body.String())
	}
	if srv.pending.Len() != 0 {
		t.Fatalf("tampered tx must not land in pending pool")
	}
}
