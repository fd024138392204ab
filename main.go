// Package main is the entry point for the civicpulse application
package main

import (
	"github.com/ethpandaops/civicpulse/cmd"
)

func main() {
	cmd.Execute()
}
