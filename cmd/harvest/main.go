// Package main is the entry point for the harvest CLI.
package main

import (
	"fmt"
	"os"

	"github.com/entrhq/harvest/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
