// Package config loads the environment-driven configuration shared by the
// node, miner and wallet processes (§6).
package config

import (
	"strings"

	flags "github.com/jessevdk/go-flags"
)

// Config mirrors the environment variables spec.md §6 names. go-flags'
// `env` struct tag lets the same struct be populated from the process
// environment or from CLI flags, matching how the teacher's daemons are
// configured.
type Config struct {
	MinerAddress  string `long:"miner-address" env:"MINER_ADDRESS" description:"base64 SECP256k1 address the coinbase reward is paid to"`
	MinerNode     string `long:"miner-node" env:"MINER_NODE" description:"base URL of the node's HTTP intake, without the port"`
	MinerPort     string `long:"miner-port" env:"MINER_PORT" default:"5000" description:"port the node's HTTP intake binds to"`
	PeerNodes     string `long:"peer-nodes" env:"PEER_NODES" description:"comma-separated base URLs of peer nodes"`
	BlockchainDB  string `long:"blockchain-db-url" env:"BLOCKCHAIN_DB_URL" default:"./data/chain.db" description:"path the blob store opens"`
}

// Peers splits PeerNodes into a slice of base URLs, dropping empty entries.
func (c *Config) Peers() []string {
	if c.PeerNodes == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(c.PeerNodes, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load parses Config from the environment and from args (typically
// os.Args[1:]); CLI flags take precedence over the environment, matching
// go-flags' documented precedence.
func Load(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default|flags.IgnoreUnknown)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return &cfg, nil
}
