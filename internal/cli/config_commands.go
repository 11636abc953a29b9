// Package cli provides configuration management commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmorrison-juniper/misthelper/internal/api"
	"github.com/jmorrison-juniper/misthelper/internal/config"
	"github.com/jmorrison-juniper/misthelper/internal/constants"
	"github.com/jmorrison-juniper/misthelper/internal/menu"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage misthelper configuration",
		Long: `Configuration management commands for misthelper.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test API connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPath() string {
	if opts.cfgFile != "" {
		return opts.cfgFile
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for misthelper.

Writes MIST_HOST, MIST_APITOKEN and org_id to the .env file. Other keys
(proxy, output directory, timeouts) can be added by hand.

Use --force to overwrite an existing file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at: %s\n", path)
					fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := initConfig(newLinePrompter(cmd.InOrStdin(), cmd.OutOrStdout()), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := cfg.SaveEnvFile(path); err != nil {
				return err
			}
			GetLogger().Info().Str("path", path).Msg("configuration saved")
			fmt.Fprintf(cmd.OutOrStdout(), "\nConfiguration saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

// initConfig asks for the settings written by 'config init'.
func initConfig(p menu.Prompter, out io.Writer) (*config.Config, error) {
	cfg := config.Default()

	fmt.Fprintln(out, "Mist Configuration Setup")
	fmt.Fprintln(out, "========================")
	fmt.Fprintln(out)

	for cfg.APIToken == "" {
		token, err := p.Prompt("API Token (required): ")
		if err != nil {
			return nil, err
		}
		if token == "" {
			fmt.Fprintln(out, "  Error: API token is required")
		}
		cfg.APIToken = token
	}

	host, err := p.Prompt("API Host [" + constants.DefaultAPIHost + "]: ")
	if err != nil {
		return nil, err
	}
	if host != "" {
		cfg.APIHost = host
	}

	org, err := p.Prompt("Organization ID (blank to pick at startup): ")
	if err != nil {
		return nil, err
	}
	cfg.OrgID = org
	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. The .env file (--config, ./.env or ~/.config/misthelper/.env)
  2. MIST_* environment variables
  3. Command-line flags

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if opts.apiHost != "" {
				cfg.APIHost = opts.apiHost
			}
			if opts.outputDir != "" {
				cfg.OutputDir = opts.outputDir
			}
			token, source := config.ResolveAPIToken("", opts.tokenFile, cfg)
			cfg.APIToken = token
			writeConfig(cmd.OutOrStdout(), cfg, source, path)
			return nil
		},
	}
}

func writeConfig(w io.Writer, cfg *config.Config, tokenSource, path string) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "API Settings:")
	fmt.Fprintf(w, "  API URL:    %s\n", cfg.APIBaseURL())
	fmt.Fprintf(w, "  Stream URL: %s\n", cfg.StreamURL())
	if cfg.APIToken != "" {
		// Never display any portion of the token
		fmt.Fprintf(w, "  API Token:  <set (%d chars, from %s)>\n", len(cfg.APIToken), tokenSource)
	} else {
		fmt.Fprintln(w, "  API Token:  <not set>")
	}
	if cfg.OrgID != "" {
		fmt.Fprintf(w, "  Org ID:     %s\n", cfg.OrgID)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Output:")
	fmt.Fprintf(w, "  Output Dir: %s\n", cfg.OutputDir)
	fmt.Fprintf(w, "  State Dir:  %s\n", cfg.StateDir)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy Settings:")
	fmt.Fprintf(w, "  Proxy Mode: %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "  Proxy Host: %s\n", cfg.ProxyHost)
		fmt.Fprintf(w, "  Proxy Port: %d\n", cfg.ProxyPort)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Sessions:")
	fmt.Fprintf(w, "  Command Timeout: %s\n", cfg.CommandTimeout)
	fmt.Fprintf(w, "  Idle Timeout:    %s\n", cfg.IdleTimeout)
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics Addr:    %s\n", cfg.MetricsAddr)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(w, "  (file does not exist - using defaults)")
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test API connection",
		Long: `Test the API connection with current configuration.

Use this to verify your API token and network connectivity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Testing API Connection")
			fmt.Fprintln(out, "======================")
			fmt.Fprintln(out)

			cfg, client, err := getAPIClient()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "API URL: %s\n", cfg.APIBaseURL())

			ctx, cancel := context.WithTimeout(GetContext(), 10*time.Second)
			defer cancel()

			self, err := client.GetSelf(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("connection test failed")
				fmt.Fprintln(out, "Connection FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				if api.IsUnauthorized(err) {
					fmt.Fprintln(out, "  The token was rejected; create a new one under My Account > API Token.")
				}
				return fmt.Errorf("connection test failed")
			}

			logger.Info().Msg("connection test successful")
			fmt.Fprintln(out, "Connection SUCCESSFUL")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Email: %s\n", self.Email)
			for _, o := range self.Orgs() {
				fmt.Fprintf(out, "  Org:   %s (%s, %s)\n", o.Name, o.OrgID, o.Role)
			}
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()
			if opts.cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}
			fmt.Fprintf(out, "  %s\n\n", path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: File exists")
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out, "Create one with: misthelper config init")
			}
			return nil
		},
	}
}
