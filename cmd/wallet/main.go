// Command wallet is the menu-driven CLI wallet: generate keypairs, submit
// transactions (including time-release messages), and inspect the chain
// and miner logs over a node's HTTP surface (§6).
package main

import (
	"fmt"
	"os"

	"github.com/yangfh2004/timerelease/config"
	"github.com/yangfh2004/timerelease/walletcli"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.MinerNode == "" {
		fmt.Fprintln(os.Stderr, "wallet: MINER_NODE (the node's base URL) is required")
		os.Exit(1)
	}

	walletcli.New(cfg.MinerNode + ":" + cfg.MinerPort).Run()
	os.Exit(0)
}
