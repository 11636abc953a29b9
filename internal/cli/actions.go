package cli

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"

	"github.com/jmorrison-juniper/misthelper/internal/collector"
	"github.com/jmorrison-juniper/misthelper/internal/constants"
	mhttp "github.com/jmorrison-juniper/misthelper/internal/http"
	"github.com/jmorrison-juniper/misthelper/internal/menu"
	"github.com/jmorrison-juniper/misthelper/internal/models"
	"github.com/jmorrison-juniper/misthelper/internal/progress"
	"github.com/jmorrison-juniper/misthelper/internal/session"
)

// menuCommands lists the menu options. Ids follow the numbering operators
// already know from the original scripts.
func (a *app) menuCommands() []menu.Command {
	return []menu.Command{
		{ID: "0", Description: "Select a site and device", Handler: a.selectSiteAndDevice},
		{ID: "1", Description: "Export open org alarms (last day)", Handler: a.exportHandler(collector.AlarmsDataset)},
		{ID: "2", Description: "Export org device events (last day)", Handler: a.exportHandler(collector.DeviceEventsDataset)},
		{ID: "3", Description: "Export org audit logs", Handler: a.exportHandler(collector.AuditLogsDataset)},
		{ID: "11", Description: "Export org site list", Handler: a.exportHandler(collector.SitesDataset)},
		{ID: "12", Description: "Export org inventory", Handler: a.exportHandler(collector.InventoryDataset)},
		{ID: "13", Description: "Export org device stats", Handler: a.exportHandler(collector.DeviceStatsDataset)},
		{ID: "14", Description: "Export org device port stats", Handler: a.exportHandler(collector.PortStatsDataset)},
		{ID: "15", Description: "Export org VPN peer stats", Handler: a.exportHandler(collector.VPNPeerStatsDataset)},
		{ID: "16", Description: "Show the device inventory of a site", Handler: a.siteInventory},
		{ID: "23", Description: "Export gateway configs of every site", Handler: a.gatewayConfigs},
		{ID: "33", Description: "Open an interactive shell on a device (exit with ~)", Handler: a.shell},
		{ID: "34", Description: "Run ARP on a device and save the output", Handler: a.arp},
		{ID: "35", Description: "Refresh core org datasets in a loop (create " + constants.StopLoopFile + " to stop)", Handler: a.loop},
		{ID: "38", Description: session.DefaultRouteCommand.Description, Handler: a.shellCommand(session.DefaultRouteCommand)},
		{ID: "39", Description: session.DHCPBindingsCommand.Description, Handler: a.shellCommand(session.DHCPBindingsCommand)},
		{ID: "40", Description: session.VLANsCommand.Description, Handler: a.shellCommand(session.VLANsCommand)},
		{ID: "41", Description: "Show interface details for a port", Handler: a.interfaceDetail},
	}
}

// newRegistry registers every menu option of a.
func newRegistry(a *app) (*menu.Registry, error) {
	reg := menu.NewRegistry()
	for _, cmd := range a.menuCommands() {
		if err := reg.Register(cmd); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (a *app) exportHandler(ds collector.Dataset) menu.Handler {
	return func(ctx context.Context, cc menu.CommandContext) error {
		n, err := a.collector.Export(ctx, ds)
		if err != nil {
			return err
		}
		fmt.Fprintf(cc.Out, "Saved %d rows to %s\n", n, a.sink.Path(ds.File))
		return nil
	}
}

func (a *app) selectSiteAndDevice(ctx context.Context, cc menu.CommandContext) error {
	site, dev, err := a.dir.SiteAndDevice(ctx, cc.SiteID, cc.DeviceID, cc.Prompter, cc.Out)
	if err != nil {
		return err
	}
	a.remember(site, dev)
	fmt.Fprintf(cc.Out, "Using %s at %s\n", dev.DisplayName(), site.Name)
	return nil
}

func (a *app) siteInventory(ctx context.Context, cc menu.CommandContext) error {
	var (
		site models.Site
		err  error
	)
	if cc.SiteID != "" {
		site, err = a.dir.ResolveSite(ctx, cc.SiteID)
	} else {
		site, err = a.dir.SelectSite(ctx, cc.Prompter, cc.Out)
	}
	if err != nil {
		return err
	}

	devices, err := a.dir.Devices(ctx, site.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cc.Out, "\n%-4s %-28s %-12s %-10s %s\n", "#", "Name", "Model", "Type", "MAC")
	for i, d := range devices {
		fmt.Fprintf(cc.Out, "%-4d %-28s %-12s %-10s %s\n", i, d.DisplayName(), d.Model, d.Type, d.MAC)
	}
	fmt.Fprintf(cc.Out, "%d devices, saved to %s\n", len(devices), a.sink.Path(constants.SiteInventoryFile))
	return nil
}

func (a *app) gatewayConfigs(ctx context.Context, cc menu.CommandContext) error {
	// Site names come from the cached site list.
	if _, err := a.dir.Sites(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("site list unavailable, site names will be Unknown")
	}

	opts := collector.GatewayOptions{
		Fast:     cc.Fast,
		Workers:  cc.Workers,
		Progress: progress.NewCLIProgress(),
	}
	if !cc.Fast {
		opts.Pacer = a.pacer(cc.Delay)
	}
	res, err := a.collector.ExportGatewayConfigs(ctx, a.client, opts)
	if err != nil {
		return err
	}
	if res.Configs == 0 {
		fmt.Fprintln(cc.Out, "No gateway configs found.")
		return nil
	}
	fmt.Fprintf(cc.Out, "Saved %d gateway configs to %s\n", res.Configs, res.ConfigsPath)
	fmt.Fprintf(cc.Out, "Saved %d port config rows to %s\n", res.PortRows, res.PortsPath)
	return nil
}

// openShell starts a remote shell and connects to it.
func (a *app) openShell(ctx context.Context, siteID, deviceID string) (session.Transport, error) {
	shell, err := a.client.CreateShellSession(ctx, siteID, deviceID)
	if err != nil {
		return nil, err
	}
	hc, err := mhttp.ConfigureWebSocketClient(a.cfg)
	if err != nil {
		return nil, err
	}
	return session.Dial(ctx, shell.URL, session.DialOptions{HTTPClient: hc, Logger: a.logger})
}

func (a *app) shell(ctx context.Context, cc menu.CommandContext) error {
	site, dev, err := a.siteAndDevice(ctx, cc)
	if err != nil {
		return err
	}
	t, err := a.openShell(ctx, site.ID, dev.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cc.Out, "Connected to %s at %s. Press %s to exit.\n", dev.DisplayName(), site.Name, constants.ShellExitKey)

	return cc.Exclusive(func() error {
		kb, err := session.NewKeyboard(os.Stdin)
		if err != nil {
			_ = t.Close()
			return err
		}
		defer kb.Close()

		ts := &session.TerminalSession{
			Transport: t,
			Keys:      kb,
			Out:       os.Stdout,
			// Console log lines would tear the emulated screen.
			Logger: a.logger.FileOnly(),
		}
		return ts.Run(ctx)
	})
}

func (a *app) arp(ctx context.Context, cc menu.CommandContext) error {
	site, dev, err := a.siteAndDevice(ctx, cc)
	if err != nil {
		return err
	}
	trigger, err := a.client.TriggerDeviceCommand(ctx, site.ID, dev.ID, "arp")
	if err != nil {
		return err
	}

	hc, err := mhttp.ConfigureWebSocketClient(a.cfg)
	if err != nil {
		return err
	}
	t, err := session.Dial(ctx, a.cfg.StreamURL(), session.DialOptions{
		HTTPClient: hc,
		Header:     nethttp.Header{"Authorization": {"Token " + a.cfg.APIToken}},
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	cs := &session.CommandSession{
		Transport: t,
		SessionID: trigger.Session,
		SiteID:    site.ID,
		DeviceID:  dev.ID,
		Sink:      a.sink,
		Timeout:   a.cfg.CommandTimeout,
		Idle:      a.cfg.IdleTimeout,
		Logger:    a.logger,
	}
	out, err := cs.Listen(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cc.Out, "Captured %d lines from %s to %s\n", len(out.Lines), dev.DisplayName(), out.RawPath)
	fmt.Fprintf(cc.Out, "Parsed %d + %d rows into %s and %s\n",
		len(out.Dataset1), len(out.Dataset2),
		a.sink.Path(constants.ARPDataset1File), a.sink.Path(constants.ARPDataset2File))
	return nil
}

func (a *app) loop(ctx context.Context, cc menu.CommandContext) error {
	rounds, err := a.collector.RefreshLoop(ctx, a.pacer(cc.Delay), constants.StopLoopFile)
	fmt.Fprintf(cc.Out, "Refresh loop finished after %d rounds\n", rounds)
	return err
}

func (a *app) shellCommand(cmd session.ShellCommand) menu.Handler {
	return func(ctx context.Context, cc menu.CommandContext) error {
		return a.runShellCommand(ctx, cc, cmd)
	}
}

func (a *app) interfaceDetail(ctx context.Context, cc menu.CommandContext) error {
	port := cc.Port
	if port == "" {
		var err error
		if port, err = cc.Prompter.Prompt("Enter port id (e.g. ge-0/0/1): "); err != nil {
			return err
		}
		if port == "" {
			return errors.New("port id is required")
		}
	}
	return a.runShellCommand(ctx, cc, session.InterfaceCommand(port))
}

func (a *app) runShellCommand(ctx context.Context, cc menu.CommandContext, cmd session.ShellCommand) error {
	site, dev, err := a.siteAndDevice(ctx, cc)
	if err != nil {
		return err
	}
	t, err := a.openShell(ctx, site.ID, dev.ID)
	if err != nil {
		return err
	}

	shellOpts := session.ShellCommandOptions{Sink: a.sink, Logger: a.logger}
	if cc.Debug {
		shellOpts.Out = cc.Out
	}
	res, err := session.RunShellCommand(ctx, t, cmd, shellOpts)
	if res != nil && res.LogPath != "" {
		fmt.Fprintf(cc.Out, "Output saved to %s\n", res.LogPath)
	}
	if err != nil {
		return err
	}
	if res.CSVPath != "" {
		fmt.Fprintf(cc.Out, "Data saved to %s\n", res.CSVPath)
	}
	return nil
}
