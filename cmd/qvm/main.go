// Package main is the entry point for the qvm CLI tool.
// qvm creates, runs and manages local QEMU virtual machines, each kept in
// its own directory with a JSON configuration.
package main

import (
	"os"

	"github.com/qvm-dev/qvm/internal/cli"
)

var version = "dev"

func main() {
	rootCmd := cli.NewRootCmd(version)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
