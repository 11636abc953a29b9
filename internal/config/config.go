// Package config provides configuration management for misthelper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/ini.v1"

	"github.com/jmorrison-juniper/misthelper/internal/constants"
)

// ErrMissingToken is returned by Validate when no API token could be resolved.
var ErrMissingToken = errors.New("mist API token not configured")

// Config represents the misthelper configuration.
//
// Sources, lowest to highest priority:
//  1. Built-in defaults
//  2. The .env file (KEY=value lines, the same file the original scripts used)
//  3. MIST_* environment variables
//  4. Command-line flags (applied by the cli package)
type Config struct {
	// API settings
	APIHost  string // e.g. api.mist.com, or a full URL for test servers
	APIToken string
	OrgID    string

	// Output locations
	OutputDir string // CSV exports and captured logs
	StateDir  string // tuning_data.json and delay_metrics.json

	// Proxy settings
	ProxyMode     string // "no-proxy", "system", "basic", "ntlm"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	// Session timings
	CommandTimeout  time.Duration
	IdleTimeout     time.Duration
	FreshnessWindow time.Duration

	// MetricsAddr enables the prometheus listener when non-empty (e.g. ":9105").
	MetricsAddr string
}

// envOverrides mirrors the subset of Config that may come from MIST_* variables.
// Field names map to MIST_HOST, MIST_APITOKEN, MIST_ORG_ID and so on. No
// envconfig name tags are used: a tagged field also falls back to the unprefixed
// name, which would pick up unrelated variables such as HOST.
type envOverrides struct {
	Host           string
	APIToken       string
	OrgID          string        `split_words:"true"`
	OutputDir      string        `split_words:"true"`
	StateDir       string        `split_words:"true"`
	ProxyMode      string        `split_words:"true"`
	ProxyHost      string        `split_words:"true"`
	ProxyPort      int           `split_words:"true"`
	ProxyUser      string        `split_words:"true"`
	ProxyPassword  string        `split_words:"true"`
	NoProxy        string        `split_words:"true"`
	CommandTimeout time.Duration `split_words:"true"`
	IdleTimeout    time.Duration `split_words:"true"`
	MetricsAddr    string        `split_words:"true"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		APIHost:         constants.DefaultAPIHost,
		OutputDir:       ".",
		StateDir:        ".",
		ProxyMode:       "no-proxy",
		CommandTimeout:  constants.CommandOutputTimeout,
		IdleTimeout:     constants.CommandIdleTimeout,
		FreshnessWindow: constants.CSVFreshnessWindow,
	}
}

// LoadConfig loads configuration from the .env file at path (if it exists) and
// then applies MIST_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadFile(path); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	// Tokens may legitimately contain '#', so inline comments are not stripped.
	file, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}

	section := file.Section(ini.DefaultSection)
	get := func(keys ...string) string {
		for _, k := range keys {
			if section.HasKey(k) {
				if v := strings.TrimSpace(section.Key(k).String()); v != "" {
					return v
				}
			}
		}
		return ""
	}

	if v := get("MIST_HOST"); v != "" {
		c.APIHost = v
	}
	if v := get("MIST_APITOKEN"); v != "" {
		c.APIToken = v
	}
	if v := get("org_id", "ORG_ID", "MIST_ORG_ID"); v != "" {
		c.OrgID = v
	}
	if v := get("OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := get("STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := get("PROXY_MODE"); v != "" {
		c.ProxyMode = v
	}
	c.ProxyHost = get("PROXY_HOST")
	c.ProxyUser = get("PROXY_USER")
	c.ProxyPassword = get("PROXY_PASSWORD")
	c.NoProxy = get("NO_PROXY")
	c.MetricsAddr = get("METRICS_ADDR")
	if section.HasKey("PROXY_PORT") {
		c.ProxyPort = section.Key("PROXY_PORT").MustInt(0)
	}
	if section.HasKey("PROXY_WARMUP") {
		c.ProxyWarmup = section.Key("PROXY_WARMUP").MustBool(false)
	}
	if section.HasKey("COMMAND_TIMEOUT") {
		c.CommandTimeout = section.Key("COMMAND_TIMEOUT").MustDuration(c.CommandTimeout)
	}
	if section.HasKey("IDLE_TIMEOUT") {
		c.IdleTimeout = section.Key("IDLE_TIMEOUT").MustDuration(c.IdleTimeout)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("MIST", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&c.APIHost, env.Host)
	setString(&c.APIToken, env.APIToken)
	setString(&c.OrgID, env.OrgID)
	setString(&c.OutputDir, env.OutputDir)
	setString(&c.StateDir, env.StateDir)
	setString(&c.ProxyMode, env.ProxyMode)
	setString(&c.ProxyHost, env.ProxyHost)
	setString(&c.ProxyUser, env.ProxyUser)
	setString(&c.ProxyPassword, env.ProxyPassword)
	setString(&c.NoProxy, env.NoProxy)
	setString(&c.MetricsAddr, env.MetricsAddr)
	if env.ProxyPort > 0 {
		c.ProxyPort = env.ProxyPort
	}
	if env.CommandTimeout > 0 {
		c.CommandTimeout = env.CommandTimeout
	}
	if env.IdleTimeout > 0 {
		c.IdleTimeout = env.IdleTimeout
	}
	return nil
}

// Validate checks that the settings needed to reach the API are present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIHost) == "" {
		return errors.New("mist API host not configured")
	}
	if strings.TrimSpace(c.APIToken) == "" {
		return ErrMissingToken
	}
	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return fmt.Errorf("unsupported proxy mode: %s", c.ProxyMode)
	}
	return nil
}

// APIBaseURL returns the REST base URL (scheme + host, no trailing slash).
// A bare host gets https; a host that already carries a scheme is used as-is.
func (c *Config) APIBaseURL() string {
	host := strings.TrimSuffix(strings.TrimSpace(c.APIHost), "/")
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

// StreamURL returns the websocket streaming endpoint. The REST host's "api."
// label is swapped for "api-ws." (api.mist.com -> api-ws.mist.com).
func (c *Config) StreamURL() string {
	u, err := url.Parse(c.APIBaseURL())
	if err != nil {
		return ""
	}
	if u.Scheme == "http" {
		u.Scheme = "ws"
	} else {
		u.Scheme = "wss"
	}
	u.Host = strings.Replace(u.Host, "api.", "api-ws.", 1)
	u.Path = constants.StreamPath
	return u.String()
}

// StatePath returns name joined onto the controller state directory.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.StateDir, name)
}

// SaveEnvFile writes the host, token and org id to a .env file readable only
// by the owner. Other keys are left to hand editing.
func (c *Config) SaveEnvFile(path string) error {
	file := ini.Empty()
	section := file.Section(ini.DefaultSection)
	if _, err := section.NewKey("MIST_HOST", c.APIHost); err != nil {
		return err
	}
	if _, err := section.NewKey("MIST_APITOKEN", c.APIToken); err != nil {
		return err
	}
	if c.OrgID != "" {
		if _, err := section.NewKey("org_id", c.OrgID); err != nil {
			return err
		}
	}

	if err := EnsureDirectory(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return os.Chmod(path, 0600)
}
