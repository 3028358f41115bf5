// Package config provides XDG path helpers.
package config

import (
	"os"
	"path/filepath"
)

const appDir = "dimconv"

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), appDir, "config.toml")
}

// DefaultParamsPath returns where the parameter record is persisted.
func DefaultParamsPath() string {
	return filepath.Join(XDGConfigHome(), appDir, "Commands.json")
}

// DefaultDBPath returns the default path for the run history database.
func DefaultDBPath() string {
	return filepath.Join(XDGDataHome(), appDir, "history.db")
}

func DefaultLogPath() string {
	return filepath.Join(XDGDataHome(), appDir, "dimconv.log")
}

// DefaultWorkdir holds files uploaded to the HTTP API.
func DefaultWorkdir() string {
	return filepath.Join(XDGDataHome(), appDir, "uploads")
}
