// Command dispatchctl is a small operator CLI over the Dispatch
// Coordinator's HTTP API (`jobs get`, `jobs create`, `workers scale`,
// `stats`), grounded in navjo3-queuectl/cmd/queuectl/main.go's thin
// main-delegates-to-internal shape.
package main

import (
	"fmt"
	"os"

	"github.com/taskgrid/dispatch/internal/cli"
	"github.com/taskgrid/dispatch/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	root := cli.NewRootCmd(cfg.CoordinatorURL)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
