// Package walletcli is the menu-driven CLI wallet (§6): generate keypairs,
// sign and submit transactions (including time-release messages), and
// inspect the chain and miner logs over the node's HTTP surface.
package walletcli

import (
	"bufio"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/yangfh2004/timerelease/chain"
	"github.com/yangfh2004/timerelease/elgamal"
)

// CLI owns the wallet's HTTP client and its prompt I/O (split out from
// os.Stdin/os.Stdout so tests can drive the menu against an in-memory
// reader/writer, matching the original source's input()/print() loop).
type CLI struct {
	NodeURL    string
	HTTPClient *http.Client
	in         *bufio.Reader
	out        io.Writer
}

// New builds a CLI talking to the node at nodeURL, reading from stdin and
// writing to stdout.
func New(nodeURL string) *CLI {
	return &CLI{
		NodeURL:    nodeURL,
		HTTPClient: &http.Client{},
		in:         bufio.NewReader(os.Stdin),
		out:        os.Stdout,
	}
}

const menu = `What do you want to do?
        1. Generate new wallet
        2. Send coins to another wallet
        3. Check transactions
        4. Print miner logs
        5. Quit
`

// Run drives the menu loop until the user picks "5. Quit" (§6).
func (c *CLI) Run() {
	for {
		fmt.Fprint(c.out, menu)
		switch c.readLine() {
		case "1":
			c.generateWallet()
		case "2":
			c.sendTransaction()
		case "3":
			c.checkTransactions()
		case "4":
			c.printLogs()
		case "5":
			return
		default:
			fmt.Fprintln(c.out, "unrecognized option")
		}
	}
}

func (c *CLI) readLine() string {
	line, _ := c.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func (c *CLI) prompt(label string) string {
	fmt.Fprintln(c.out, label)
	return c.readLine()
}

// generateWallet prints a fresh SECP256k1 keypair: the base64-encoded
// compressed public key is the address, the hex private key must be saved
// by the user — the wallet never persists it (§6).
func (c *CLI) generateWallet() {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(c.out, "failed to generate keypair: %v\n", err)
		return
	}
	addr := base64.StdEncoding.EncodeToString(priv.PubKey().SerializeCompressed())
	fmt.Fprintln(c.out, "=========================================")
	fmt.Fprintln(c.out, "IMPORTANT: save this credentials or you won't be able to recover your wallet")
	fmt.Fprintln(c.out, "=========================================")
	fmt.Fprintf(c.out, "Address (public key): %s\n", addr)
	fmt.Fprintf(c.out, "Private key: %s\n", hex.EncodeToString(priv.Serialize()))
}

// sendTransaction prompts for a transfer and, optionally, a time-locked
// message (§4.5): it fetches the chain tip, fast-forwards the pubkey
// schedule to the target release height, encrypts the message against that
// future key, and submits the signed transaction.
func (c *CLI) sendTransaction() {
	addrFrom := c.prompt("From: introduce your wallet address (public key)")
	privHex := c.prompt("Introduce your private key")
	addrTo := c.prompt("To: introduce destination wallet address")
	amountStr := c.prompt("Amount: number stating how much do you want to send")
	msg := c.prompt("Hidden/Locked Message: the message going to be released in the future (blank for none)")
	lockTimeStr := c.prompt("Lock Time (sec)")

	privBytes, err := hex.DecodeString(strings.TrimSpace(privHex))
	if err != nil || len(privBytes) != 32 {
		fmt.Fprintln(c.out, "Wrong address or key length! Verify and try again.")
		return
	}
	priv := secp256k1.PrivKeyFromBytes(privBytes)

	amount, err := strconv.ParseUint(strings.TrimSpace(amountStr), 10, 64)
	if err != nil {
		fmt.Fprintf(c.out, "invalid amount: %v\n", err)
		return
	}

	tx := &chain.Transaction{AddrFrom: addrFrom, AddrTo: addrTo, Amount: amount}
	sig, err := chain.SignECDSA(priv, tx.CanonicalBody())
	if err != nil {
		fmt.Fprintf(c.out, "failed to sign transaction: %v\n", err)
		return
	}

	req := txionRequest{
		AddrFrom:  addrFrom,
		AddrTo:    addrTo,
		Amount:    amount,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}

	lockTime, lockErr := strconv.ParseInt(strings.TrimSpace(lockTimeStr), 10, 64)
	if msg != "" && lockErr == nil && lockTime > 0 {
		releaseHeight, cipher, err := c.encryptForRelease(msg, lockTime)
		if err != nil {
			fmt.Fprintf(c.out, "failed to prepare time-release message: %v\n", err)
			return
		}
		req.Cipher = cipher.Hex()
		req.ReleaseBlockIdx = &releaseHeight
	}

	buf, err := json.Marshal(req)
	if err != nil {
		fmt.Fprintf(c.out, "failed to encode transaction: %v\n", err)
		return
	}
	resp, err := c.HTTPClient.Post(c.NodeURL+"/txion", "application/json", strings.NewReader(string(buf)))
	if err != nil {
		fmt.Fprintf(c.out, "failed to submit transaction: %v\n", err)
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Fprint(c.out, string(body))
}

// encryptForRelease fetches the chain tip and fast-forwards its pubkey
// schedule block_interval = lock_time/BLOCK_TIME steps to find the key the
// message should be encrypted against (§4.5).
func (c *CLI) encryptForRelease(msg string, lockTime int64) (uint64, *elgamal.Ciphertext, error) {
	resp, err := c.HTTPClient.Get(c.NodeURL + "/last")
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var tip blockView
	if err := json.NewDecoder(resp.Body).Decode(&tip); err != nil {
		return 0, nil, err
	}

	pk, err := elgamal.ParsePublicKeyHex(tip.PublicKey)
	if err != nil {
		return 0, nil, fmt.Errorf("chain has no mined blocks yet to schedule against: %w", err)
	}

	blockInterval := uint64(lockTime) / elgamal.BlockTime
	futurePubKey := pk
	for i := uint64(0); i < blockInterval; i++ {
		futurePubKey = elgamal.ScheduleNext(futurePubKey, futurePubKey.BitLength)
	}

	m := new(big.Int).SetBytes([]byte(msg))
	if m.Cmp(futurePubKey.P) >= 0 {
		return 0, nil, fmt.Errorf("message too long to encrypt under a %d-bit key", futurePubKey.BitLength)
	}
	cipher, err := elgamal.EncryptForFuture(futurePubKey, m)
	if err != nil {
		return 0, nil, err
	}
	return tip.Height + blockInterval, cipher, nil
}

// checkTransactions retrieves the whole chain and pretty-prints it grouped
// by block height with a running balance per address (supplemented from
// original_source/wallet.py's list-blocks printer, SPEC_FULL.md §4).
func (c *CLI) checkTransactions() {
	resp, err := c.HTTPClient.Get(c.NodeURL + "/blocks")
	if err != nil {
		fmt.Fprintf(c.out, "failed to fetch blocks: %v\n", err)
		return
	}
	defer resp.Body.Close()
	var blocks []blockView
	if err := json.NewDecoder(resp.Body).Decode(&blocks); err != nil {
		fmt.Fprintf(c.out, "failed to decode blocks: %v\n", err)
		return
	}

	balances := make(map[string]int64)
	for _, b := range blocks {
		fmt.Fprintf(c.out, "Block %d (%d tx):\n", b.Height, len(b.Transactions))
		for _, tx := range b.Transactions {
			fmt.Fprintf(c.out, "  %s -> %s : %d\n", tx.AddrFrom, tx.AddrTo, tx.Amount)
			balances[tx.AddrTo] += int64(tx.Amount)
			if tx.AddrFrom != chain.CoinbaseFrom {
				balances[tx.AddrFrom] -= int64(tx.Amount)
			}
		}
		if len(b.Transactions) > 0 {
			fmt.Fprintln(c.out, "  running balances:")
			for addr, bal := range balances {
				fmt.Fprintf(c.out, "    %s: %d\n", addr, bal)
			}
		}
	}
}

func (c *CLI) printLogs() {
	resp, err := c.HTTPClient.Get(c.NodeURL + "/logs")
	if err != nil {
		fmt.Fprintf(c.out, "failed to fetch logs: %v\n", err)
		return
	}
	defer resp.Body.Close()
	var logs []chain.LogEntry
	if err := json.NewDecoder(resp.Body).Decode(&logs); err != nil {
		fmt.Fprintf(c.out, "failed to decode logs: %v\n", err)
		return
	}
	for _, entry := range logs {
		fmt.Fprintf(c.out, "[%s] %d: %s\n", entry.Category, entry.Timestamp, entry.Info)
	}
}

// blockView and txView mirror node's /blocks and /last JSON shape exactly:
// the wallet is a pure HTTP client of the node, it
// never touches the store directly.
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

type txView struct {
	ID           uint64  `json:"id"`
	AddrFrom     string  `json:"addr_from"`
	AddrTo       string  `json:"addr_to"`
	Amount       uint64  `json:"amount"`
	Signature    string  `json:"signature,omitempty"`
	Cipher       string  `json:"cipher,omitempty"`
	ReleaseBlock *uint64 `json:"release_block_idx,omitempty"`
}

// txionRequest mirrors node's POST /txion body exactly.
type txionRequest struct {
	AddrFrom        string  `json:"addr_from"`
	AddrTo          string  `json:"addr_to"`
	Amount          uint64  `json:"amount"`
	Signature       string  `json:"signature"`
	Cipher          string  `json:"cipher,omitempty"`
	ReleaseBlockIdx *uint64 `json:"release_block_idx,omitempty"`
}
