// Package main is the entry point for tapstack.
package main

import (
	"os"

	"firestige.xyz/tapstack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
