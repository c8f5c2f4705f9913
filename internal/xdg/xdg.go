// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package xdg provides XDG Base Directory paths for accountd.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "accountd"

// ConfigFileName is the file looked up in ConfigDir when no config path is given.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for accountd.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_HOME_UNKNOWN").Wrap(err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigFile returns the path of the config file in ConfigDir when
// that file exists, and "" otherwise.
func DefaultConfigFile() string {
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, ConfigFileName)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
