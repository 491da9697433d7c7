// Command miner runs the mining process: it drains pending transactions
// from a node over HTTP, assembles candidate blocks, and races the
// Pollard-rho walk against other peers for the time-release key (§6).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/yangfh2004/timerelease/config"
	"github.com/yangfh2004/timerelease/logger"
	"github.com/yangfh2004/timerelease/minerproc"
	"github.com/yangfh2004/timerelease/store"
)

var log = logger.New(logger.SubsystemMiner)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("miner: loading config: %w", err)
	}
	if cfg.MinerAddress == "" {
		return fmt.Errorf("miner: MINER_ADDRESS is required")
	}

	if err := logger.InitRotating("./logs/miner.log", 3); err != nil {
		return fmt.Errorf("miner: initializing rotating log: %w", err)
	}

	s, err := store.Open(cfg.BlockchainDB)
	if err != nil {
		return fmt.Errorf("miner: opening store at %s: %w", cfg.BlockchainDB, err)
	}
	defer s.Close()

	loop := minerproc.NewLoop(s, cfg.MinerAddress, cfg.MinerNode+":"+cfg.MinerPort, cfg.Peers())

	stop := &atomic.Bool{}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("shutting down")
		stop.Store(true)
	}()

	loop.RunForever(stop)
	return nil
}
