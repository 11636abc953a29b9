package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jmorrison-juniper/misthelper/internal/collector"
	"github.com/jmorrison-juniper/misthelper/internal/config"
	"github.com/jmorrison-juniper/misthelper/internal/menu"
	"github.com/jmorrison-juniper/misthelper/internal/session"
)

// runMenuOption runs one menu option non-interactively (-M or "run").
func runMenuOption(ctx context.Context, id string) error {
	a, err := newApp(ctx, stdinPrompter, stdout)
	if err != nil {
		return err
	}
	reg, err := newRegistry(a)
	if err != nil {
		return err
	}
	GetLogger().Info().Str("option", id).Msg("executing menu option")
	return reg.Run(ctx, id, commandContext(opts, a.orgID, stdinPrompter, stdout))
}

// runConsole shows the interactive menu until the user quits.
func runConsole(ctx context.Context) error {
	a, err := newApp(ctx, stdinPrompter, stdout)
	if err != nil {
		return err
	}
	reg, err := newRegistry(a)
	if err != nil {
		return err
	}

	history := ""
	if dir := config.ConfigDirectory(); dir != "" && config.EnsureDirectory(dir) == nil {
		history = filepath.Join(dir, "history")
	}
	console, err := menu.NewConsole(reg, menu.ConsoleConfig{HistoryFile: history, Logger: GetLogger()})
	if err != nil {
		return err
	}
	defer console.Close()

	return console.Run(ctx, commandContext(opts, a.orgID, nil, nil))
}

// newMenuCmd creates the 'menu' command.
func newMenuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu (the default)",
		Long: `Show the numbered menu and run options until you quit.

Type an option number and press Enter. Tab completes option numbers.
Enter q, quit, exit or Ctrl+D to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(GetContext())
		},
	}
}

// newRunCmd creates the 'run' command.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <option>",
		Short: "Run one menu option and exit",
		Long: `Run one menu option non-interactively, same as -M.

Site and device come from -S and -D; anything missing is prompted for.

Examples:
  misthelper run 11
  misthelper run 34 -S HQ -D edge-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenuOption(GetContext(), args[0])
		},
	}
}

// newListCmd creates the 'list' command.
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List menu options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Listing needs no API access; handlers are never called.
			reg, err := newRegistry(&app{})
			if err != nil {
				return err
			}
			reg.WriteMenu(cmd.OutOrStdout())
			return nil
		},
	}
}

// newExportCmd creates the 'export' command.
func newExportCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "export [dataset...]",
		Short: "Export org datasets to CSV",
		Long: `Export one or more org datasets to CSV files in the output directory.

Datasets: ` + datasetNames() + `

Without arguments the core datasets are exported; --all adds alarms,
device events and audit logs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			datasets, err := selectDatasets(args, all)
			if err != nil {
				return err
			}

			ctx := GetContext()
			a, err := newApp(ctx, stdinPrompter, stdout)
			if err != nil {
				return err
			}
			for _, ds := range datasets {
				n, err := a.collector.Export(ctx, ds)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %6d rows  %s\n", ds.Name, n, a.sink.Path(ds.File))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Export every dataset")
	return cmd
}

func datasetNames() string {
	names := make([]string, 0, len(collector.AllDatasets))
	for _, ds := range collector.AllDatasets {
		names = append(names, ds.Name)
	}
	return strings.Join(names, ", ")
}

// selectDatasets maps names to datasets; no names means the core set.
func selectDatasets(names []string, all bool) ([]collector.Dataset, error) {
	if all {
		return collector.AllDatasets, nil
	}
	if len(names) == 0 {
		return collector.CoreDatasets, nil
	}
	out := make([]collector.Dataset, 0, len(names))
	for _, name := range names {
		ds, ok := collector.LookupDataset(name)
		if !ok {
			return nil, fmt.Errorf("unknown dataset %q (choose from %s)", name, datasetNames())
		}
		out = append(out, ds)
	}
	return out, nil
}

// optionCmd wraps a menu option as a subcommand.
func optionCmd(use, id, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenuOption(GetContext(), id)
		},
	}
}

func newShellCmd() *cobra.Command {
	return optionCmd("shell", "33", "Open an interactive device shell",
		`Open a remote shell on a device and attach the local terminal.

Keys are forwarded as they are typed. Press ~ to leave the shell.

Example:
  misthelper shell -S HQ -D edge-1`)
}

func newARPCmd() *cobra.Command {
	return optionCmd("arp", "34", "Capture the ARP table of a device",
		`Trigger an ARP command on a device and collect its output from the
command stream. The raw text and two parsed tables are written to the
output directory.`)
}

func newLoopCmd() *cobra.Command {
	return optionCmd("loop", "35", "Refresh core org datasets until stopped",
		`Export the core org datasets over and over, pausing between rounds.

The pause comes from the adaptive rate controller unless --delay is set.
Create stop_loop.txt in the working directory or press Ctrl+C to stop.`)
}

func newGatewayConfigsCmd() *cobra.Command {
	return optionCmd("gateway-configs", "23", "Export every gateway config",
		`Fetch the device config of every gateway in the org inventory and write
AllSiteGatewayConfigs.csv and FilteredGatewayPortConfigs.csv.

Calls are paced by the rate controller; --fast fetches concurrently with
--workers goroutines instead.`)
}

// newExecCmd creates the 'exec' command.
func newExecCmd() *cobra.Command {
	var (
		logFile string
		csvFile string
	)

	cmd := &cobra.Command{
		Use:   "exec <command>",
		Short: "Run a CLI command on a device and save its output",
		Long: `Run one command through a device shell and save the transcript.

With --csv the first JSON document in the output is flattened into a CSV,
so pipe the command through "| display json".

Example:
  misthelper exec -S HQ -D edge-1 --csv Uptime.csv "show system uptime | display json | no-more"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := newApp(ctx, stdinPrompter, stdout)
			if err != nil {
				return err
			}
			sc := session.NewShellCommand(args[0], args[0], logFile, csvFile)
			return a.runShellCommand(ctx, commandContext(opts, a.orgID, stdinPrompter, cmd.OutOrStdout()), sc)
		},
	}
	cmd.Flags().StringVar(&logFile, "log", "ws_exec.log", "Transcript file name")
	cmd.Flags().StringVar(&csvFile, "csv", "", "Write the JSON output to this CSV file")
	return cmd
}

// newUsageCmd creates the 'usage' command.
func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show API requests used this hour",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := getAPIClient()
			if err != nil {
				return err
			}
			used, limit, err := client.FetchUsage(GetContext())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API requests used: %d of %d\n", used, limit)
			return nil
		},
	}
}

// newPaceCmd creates the 'pace' command.
func newPaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pace",
		Short: "Compute the delay the rate controller would apply now",
		Long: `Run one rate controller step and print the delay.

This updates tuning_data.json and appends to delay_metrics.json exactly as
a paced command would.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			cfg, client, err := getAPIClient()
			if err != nil {
				return err
			}
			// The controller needs no org.
			a := &app{cfg: cfg, client: client, logger: GetLogger(), registry: prometheus.NewRegistry()}
			smoothed, delay := a.rateController().ComputeDelay(ctx, nil)
			fmt.Fprintf(cmd.OutOrStdout(), "Delay: %.2f seconds\n", delay.Seconds())
			if smoothed != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Smoothed: %.4f\n", *smoothed)
			}
			return nil
		},
	}
}
