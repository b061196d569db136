// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for Castellan.
//
// Usage:
//
//	go run . [flags]
//	./castellan [flags]
//
// This launches the Castellan CLI. See --help for options.
package main

import (
	"log"
	"os"

	"github.com/castellan-dev/castellan/ui/cli"
)

// main is the entrypoint for the Castellan CLI.
func main() {
	if err := cli.Execute(); err != nil {
		log.Printf("Castellan CLI error: %v", err)
		os.Exit(1)
	}
}
