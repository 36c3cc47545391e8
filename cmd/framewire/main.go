// Package main is the entry point for the framewire daemon.
package main

import (
	"os"

	"github.com/jmylchreest/framewire/cmd/framewire/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
