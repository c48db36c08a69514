// Package main is the entry point for the tunman binary.
//
// tunman supervises a fleet of SSH tunnels described by YAML host files: it
// spawns the underlying ssh/autossh processes, health-checks them, retries
// failed ones with a bounded budget, and exposes aggregate status over HTTP.
//
// Usage:
//
//	tunman start -c /etc/tunman             # run the supervisor
//	tunman status -c /etc/tunman            # list configured forwardings
//	tunman doctor -c /etc/tunman             # local diagnostics
//
// The CLI is constructed in internal/cli; this file wires it together and
// handles top-level error reporting.
package main

import (
	"fmt"
	"os"

	"github.com/riotkit-org/tunman-go/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
