// Package main is the entry point for the studentauth server.
package main

import (
	"fmt"
	"os"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
