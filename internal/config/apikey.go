package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveAPIToken returns a Mist API token by checking multiple sources in priority order.
//
// Priority (highest to lowest):
//  1. Provided token parameter (if non-empty) - e.g., from --token flag
//  2. Token file passed with --token-file
//  3. Token already present in cfg (.env file or MIST_APITOKEN, see LoadConfig)
//  4. Default token file (~/.config/misthelper/token)
//
// The second return value names the source for --debug output:
// "flag", "token-file", "config", "default-token-file", or "" if not found.
func ResolveAPIToken(token, tokenFile string, cfg *Config) (string, string) {
	// 1. If explicitly provided, use it (highest priority)
	if strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token), "flag"
	}

	// 2. Explicit token file
	if tokenFile != "" {
		if key, err := ReadTokenFile(tokenFile); err == nil {
			return key, "token-file"
		}
	}

	// 3. Config file or environment
	if cfg != nil && cfg.APIToken != "" {
		return cfg.APIToken, "config"
	}

	// 4. Default token file
	if path := DefaultTokenPath(); path != "" {
		if key, err := ReadTokenFile(path); err == nil {
			return key, "default-token-file"
		}
	}

	return "", ""
}

// ReadTokenFile reads a token from a file, trimming whitespace.
func ReadTokenFile(path string) (string, error) {
	// Check file permissions before reading
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat token file: %w", err)
	}

	// Token files should be readable only by owner (0600 or stricter)
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		fmt.Fprintf(os.Stderr, "Warning: Token file %s has insecure permissions %04o. Consider using 'chmod 600 %s'\n", path, mode, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file is empty")
	}
	return token, nil
}
