// Package main is the entry point for batchctl, the terminal client for the
// image batch API.
package main

import (
	"os"

	"imageBatch/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
