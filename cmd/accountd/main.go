// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package main is the entry point for the accountd server.
package main

import (
	"fmt"
	"os"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = versionString()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
