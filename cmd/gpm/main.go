// Package main implements the go-pattern-miner CLI (gpm).
// It mines bug-fix patterns from example code changes and detects them in
// Python projects.
package main

import (
	"os"

	"github.com/l3aro/go-pattern-miner/cmd/gpm/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (" + buildTime + ")"
	}
	commands.RootCmd.SetVersionTemplate(`gpm version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
