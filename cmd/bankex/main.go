// Package main is the entry point for the bankex CLI.
package main

import (
	"os"

	"github.com/congo-pay/bankex/cmd/bankex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
