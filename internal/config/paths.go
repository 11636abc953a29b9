package config

import (
	"os"
	"path/filepath"
)

// ConfigDir is the directory name under the user config root.
const ConfigDir = "misthelper"

// ConfigDirectory returns the per-user configuration directory.
//
// Locations:
//   - Windows: %APPDATA%\misthelper
//   - Unix: ~/.config/misthelper
func ConfigDirectory() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(homeDir, ".config", ConfigDir)
	}
	return filepath.Join(dir, ConfigDir)
}

// DefaultConfigPath returns the .env file used when --config is not given.
// The working directory wins, matching how the tool is usually run from a
// project folder that holds its exports.
func DefaultConfigPath() string {
	if _, err := os.Stat(".env"); err == nil {
		return ".env"
	}
	if dir := ConfigDirectory(); dir != "" {
		return filepath.Join(dir, ".env")
	}
	return ".env"
}

// DefaultTokenPath returns ~/.config/misthelper/token.
func DefaultTokenPath() string {
	dir := ConfigDirectory()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "token")
}

// EnsureDirectory creates dir (and parents) with owner-only permissions.
func EnsureDirectory(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0700)
}
