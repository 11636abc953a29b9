// Package cli provides the command-line interface for misthelper.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jmorrison-juniper/misthelper/internal/constants"
	"github.com/jmorrison-juniper/misthelper/internal/logging"
	"github.com/jmorrison-juniper/misthelper/internal/version"
)

// options holds the global flags.
type options struct {
	cfgFile     string
	tokenFile   string
	apiHost     string
	outputDir   string
	metricsAddr string

	org    string
	menuID string
	site   string
	device string
	port   string

	debug   bool
	delay   int // seconds; 0 lets the rate controller decide
	fast    bool
	workers int
}

var (
	opts options

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command. Without a subcommand it runs the
// menu: the option given with -M, or the interactive console.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "misthelper",
		Short: "Mist operator console",
		Long: `misthelper ` + version.Version + ` - Built: ` + version.BuildTime + `
Operator console for Juniper Mist organisations.

Exports org data to CSV, opens device shells, captures command output and
paces API use so a long session stays inside the hourly request budget.

Examples:
  misthelper                         interactive menu
  misthelper -M 11                   export the site list and exit
  misthelper -M 33 -S HQ -D edge-1   open a shell on edge-1 at site HQ
  misthelper loop --delay 60         refresh core datasets every minute`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger("cli", logging.Options{FilePath: constants.LogFile})
			logger.InstallGlobal()
			if opts.debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.menuID != "" {
				return runMenuOption(GetContext(), opts.menuID)
			}
			return runConsole(GetContext())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.cfgFile, "config", "c", "", "Path to the .env configuration file")
	flags.StringVar(&opts.tokenFile, "token-file", "", "Path to file containing the Mist API token")
	flags.StringVar(&opts.apiHost, "api-host", "", "Mist API host (overrides config), e.g. api.eu.mist.com")
	flags.StringVar(&opts.outputDir, "output-dir", "", "Directory for CSV exports and captured logs")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9105)")

	flags.StringVarP(&opts.org, "org", "O", "", "Organization id (skips the org prompt)")
	flags.StringVarP(&opts.menuID, "menu", "M", "", "Menu option to run non-interactively")
	flags.StringVarP(&opts.site, "site", "S", "", "Site name or id")
	flags.StringVarP(&opts.device, "device", "D", "", "Device name, id or MAC")
	flags.StringVarP(&opts.port, "port", "P", "", "Port id (e.g. ge-0/0/1)")

	flags.BoolVar(&opts.debug, "debug", false, "Enable debug output")
	flags.IntVar(&opts.delay, "delay", 0, "Fixed delay in seconds between paced API calls (0 = adaptive)")
	flags.BoolVar(&opts.fast, "fast", false, "Fetch device configs concurrently without pacing")
	flags.IntVar(&opts.workers, "workers", 0, "Concurrent fetches in --fast mode (0 = number of CPUs)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	rootCmd.AddCommand(newCompletionCmd(rootCmd))
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// newCompletionCmd replaces cobra's default completion command.
func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Enable tab-completion for misthelper commands",
		Long: `Generate shell completion scripts for misthelper.

QUICK START:

  Linux with bash:
    misthelper completion bash | sudo tee /etc/bash_completion.d/misthelper

  macOS with zsh:
    mkdir -p ~/.zsh/completions
    misthelper completion zsh > ~/.zsh/completions/_misthelper
    # Then add to ~/.zshrc: fpath=(~/.zsh/completions $fpath)

QUICK TEST (temporary, current session only):
  source <(misthelper completion bash)`,
	}

	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate zsh completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenZshCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate fish completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "powershell",
		Short: "Generate PowerShell completion script",
		Long: `Generate the autocompletion script for PowerShell.

  misthelper completion powershell >> $PROFILE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.GenPowerShellCompletion(cmd.OutOrStdout())
		},
	})
	return completionCmd
}

// Execute runs the CLI.
func Execute() error {
	// Create a context that can be cancelled by signals
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Ctrl+C inside the menu is handled by readline; a signal that reaches
	// us here cancels whatever is running.
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\n\nReceived signal %v, cancelling operations...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newMenuCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newShellCmd())
	rootCmd.AddCommand(newARPCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newLoopCmd())
	rootCmd.AddCommand(newGatewayConfigsCmd())
	rootCmd.AddCommand(newUsageCmd())
	rootCmd.AddCommand(newPaceCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
