// Command node runs the HTTP intake process: it accepts transactions,
// serves the chain for read access and peer polling (§6).
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/yangfh2004/timerelease/config"
	"github.com/yangfh2004/timerelease/logger"
	"github.com/yangfh2004/timerelease/node"
	"github.com/yangfh2004/timerelease/store"
)

var log = logger.New(logger.SubsystemNode)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("node: loading config: %w", err)
	}

	if err := logger.InitRotating("./logs/node.log", 3); err != nil {
		return fmt.Errorf("node: initializing rotating log: %w", err)
	}

	s, err := store.Open(cfg.BlockchainDB)
	if err != nil {
		return fmt.Errorf("node: opening store at %s: %w", cfg.BlockchainDB, err)
	}
	defer s.Close()

	srv := node.NewServer(s)
	addr := ":" + cfg.MinerPort
	log.Infof("listening on %s", addr)
	return http.ListenAndServe(addr, srv.Router())
}
