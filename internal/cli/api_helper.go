// Package cli provides API client helper functions.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmorrison-juniper/misthelper/internal/api"
	"github.com/jmorrison-juniper/misthelper/internal/collector"
	"github.com/jmorrison-juniper/misthelper/internal/config"
	"github.com/jmorrison-juniper/misthelper/internal/constants"
	"github.com/jmorrison-juniper/misthelper/internal/directory"
	"github.com/jmorrison-juniper/misthelper/internal/export"
	mhttp "github.com/jmorrison-juniper/misthelper/internal/http"
	"github.com/jmorrison-juniper/misthelper/internal/logging"
	"github.com/jmorrison-juniper/misthelper/internal/menu"
	"github.com/jmorrison-juniper/misthelper/internal/models"
	"github.com/jmorrison-juniper/misthelper/internal/ratelimit"
)

// ErrNoOrgs is returned when the token grants no org-level privilege.
var ErrNoOrgs = errors.New("token has no organization privileges")

// loadConfig merges the .env file, MIST_* environment and global flags, then
// resolves the API token.
func loadConfig(o options) (*config.Config, error) {
	path := o.cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if o.apiHost != "" {
		cfg.APIHost = o.apiHost
	}
	if o.outputDir != "" {
		cfg.OutputDir = o.outputDir
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
	if o.org != "" {
		cfg.OrgID = o.org
	}

	token, source := config.ResolveAPIToken("", o.tokenFile, cfg)
	cfg.APIToken = token
	GetLogger().Debug().Str("source", source).Str("config", path).Msg("configuration loaded")

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingToken) {
			return nil, fmt.Errorf("%w: set MIST_APITOKEN in %s or use --token-file", err, path)
		}
		return nil, err
	}

	if mhttp.NeedsProxyPassword(cfg) {
		password, err := readPassword(os.Stdin, os.Stderr, fmt.Sprintf("Proxy password for %s: ", cfg.ProxyUser))
		if err != nil {
			return nil, fmt.Errorf("proxy password: %w", err)
		}
		cfg.ProxyPassword = password
	}
	return cfg, nil
}

// getAPIClient loads configuration and creates an API client.
func getAPIClient() (*config.Config, *api.Client, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}
	client.SetLogger(GetLogger())
	return cfg, client, nil
}

// selfAPI is the part of the client used to pick an org.
type selfAPI interface {
	GetSelf(ctx context.Context) (*models.Self, error)
}

// resolveOrg returns the configured org id, the only org the token can see,
// or the one the user picks.
func resolveOrg(ctx context.Context, client selfAPI, orgID string, p menu.Prompter, out io.Writer) (string, error) {
	if orgID != "" {
		return orgID, nil
	}

	self, err := client.GetSelf(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read token privileges: %w", err)
	}
	orgs := self.Orgs()
	switch len(orgs) {
	case 0:
		return "", ErrNoOrgs
	case 1:
		return orgs[0].OrgID, nil
	}

	fmt.Fprintln(out, "\nAvailable Organizations:")
	for i, o := range orgs {
		fmt.Fprintf(out, "[%d] %s (%s)\n", i, o.Name, o.OrgID)
	}
	answer, err := p.Prompt("Enter organization index: ")
	if err != nil {
		return "", err
	}
	for i, o := range orgs {
		if answer == fmt.Sprint(i) || answer == o.OrgID || strings.EqualFold(answer, o.Name) {
			return o.OrgID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", directory.ErrInvalidChoice, answer)
}

// app is everything a command needs once the org is known.
type app struct {
	cfg       *config.Config
	client    *api.Client
	orgID     string
	sink      *export.Sink
	dir       *directory.Directory
	collector *collector.Collector
	logger    *logging.Logger
	registry  *prometheus.Registry

	ctrlOnce   sync.Once
	controller *ratelimit.Controller

	// Last selection from option 0, used when -S/-D are absent.
	selMu    sync.Mutex
	selected *selection
}

type selection struct {
	site   models.Site
	device models.Device
}

// newApp builds the app for the current flags, prompting for the org if needed.
func newApp(ctx context.Context, p menu.Prompter, out io.Writer) (*app, error) {
	cfg, client, err := getAPIClient()
	if err != nil {
		return nil, err
	}
	orgID, err := resolveOrg(ctx, client, cfg.OrgID, p, out)
	if err != nil {
		return nil, err
	}

	log := GetLogger()
	sink := export.NewSink(cfg.OutputDir, log)
	a := &app{
		cfg:       cfg,
		client:    client,
		orgID:     orgID,
		sink:      sink,
		dir:       directory.New(client, sink, orgID, cfg.FreshnessWindow, log),
		collector: collector.New(client, sink, orgID, log),
		logger:    log,
		registry:  prometheus.NewRegistry(),
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := serveMetrics(ctx, cfg.MetricsAddr, a.registry, log); err != nil {
				log.Warn().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics listener stopped")
			}
		}()
	}
	return a, nil
}

// rateController builds the controller on first use. State files live in
// the configured state directory.
func (a *app) rateController() *ratelimit.Controller {
	a.ctrlOnce.Do(func() {
		if err := config.EnsureDirectory(a.cfg.StateDir); err != nil {
			a.logger.Warn().Err(err).Msg("failed to create state directory")
		}
		a.controller = ratelimit.NewController(
			ratelimit.NewUsageCache(),
			a.client,
			ratelimit.NewFileTuningStore(a.cfg.StatePath(constants.TuningFile), a.logger),
			ratelimit.WithDiagnostics(ratelimit.NewNDJSONLog(a.cfg.StatePath(constants.DelayMetricsFile))),
			ratelimit.WithMetrics(ratelimit.NewMetrics(a.registry)),
			ratelimit.WithLogger(a.logger),
		)
	})
	return a.controller
}

// pacer spaces API calls: a fixed delay when --delay is set, else adaptive.
func (a *app) pacer(delay time.Duration) *collector.Pacer {
	if delay > 0 {
		return collector.NewPacer(nil, delay, a.logger)
	}
	return collector.NewPacer(a.rateController(), delay, a.logger)
}

// siteAndDevice resolves -S/-D, falls back to the option 0 selection, and
// prompts for whatever is still missing.
func (a *app) siteAndDevice(ctx context.Context, cc menu.CommandContext) (models.Site, models.Device, error) {
	if cc.SiteID == "" && cc.DeviceID == "" {
		a.selMu.Lock()
		sel := a.selected
		a.selMu.Unlock()
		if sel != nil {
			return sel.site, sel.device, nil
		}
	}
	site, dev, err := a.dir.SiteAndDevice(ctx, cc.SiteID, cc.DeviceID, cc.Prompter, cc.Out)
	if err != nil {
		return site, dev, err
	}
	a.remember(site, dev)
	return site, dev, nil
}

func (a *app) remember(site models.Site, dev models.Device) {
	a.selMu.Lock()
	a.selected = &selection{site: site, device: dev}
	a.selMu.Unlock()
}

// commandContext turns the global flags into a menu context.
func commandContext(o options, orgID string, p menu.Prompter, out io.Writer) menu.CommandContext {
	return menu.CommandContext{
		OrgID:    orgID,
		SiteID:   o.site,
		DeviceID: o.device,
		Port:     o.port,
		Debug:    o.debug,
		Delay:    time.Duration(o.delay) * time.Second,
		Fast:     o.fast,
		Workers:  o.workers,
		Prompter: p,
		Out:      out,
	}
}

// stdout is where non-interactive commands print.
var stdout io.Writer = os.Stdout
