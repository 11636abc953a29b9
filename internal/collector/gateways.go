package collector

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmorrison-juniper/misthelper/internal/constants"
	"github.com/jmorrison-juniper/misthelper/internal/export"
	"github.com/jmorrison-juniper/misthelper/internal/models"
	"github.com/jmorrison-juniper/misthelper/internal/progress"
)

// GatewayAPI is the subset of the Mist client used to fetch device configs.
type GatewayAPI interface {
	GetOrgInventory(ctx context.Context, orgID, deviceType string) ([]models.InventoryItem, error)
	GetSiteDevice(ctx context.Context, siteID, deviceID string) (models.Record, error)
}

// GatewayOptions selects how device configs are fetched.
type GatewayOptions struct {
	// Fast fetches concurrently with up to Workers goroutines (NumCPU when
	// zero) and skips pacing.
	Fast    bool
	Workers int
	// Pacer spaces out fetches when Fast is off; nil fetches back to back.
	Pacer    *Pacer
	Progress progress.Reporter
}

// GatewayExport summarises ExportGatewayConfigs.
type GatewayExport struct {
	Configs     int
	PortRows    int
	ConfigsPath string
	PortsPath   string
}

type gatewayWork struct {
	siteID, deviceID, siteName string
}

// portColumn matches per-port config columns of the first gateway module.
var portColumn = regexp.MustCompile(`(?i)^port_config_ge-0/0/\d+_.*`)

// ExportGatewayConfigs fetches the config of every gateway in the org inventory
// and writes AllSiteGatewayConfigs.csv plus FilteredGatewayPortConfigs.csv.
func (c *Collector) ExportGatewayConfigs(ctx context.Context, api GatewayAPI, opts GatewayOptions) (*GatewayExport, error) {
	siteNames := c.cachedSiteNames()
	configs, err := c.FetchGatewayConfigs(ctx, api, siteNames, opts)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		c.logger.Warn().Msg("no device configs found")
		return &GatewayExport{}, nil
	}

	flat := export.Flatten(configs)
	export.EscapeMultiline(flat)

	res := &GatewayExport{Configs: len(flat)}
	if res.ConfigsPath, err = c.sink.WriteRecords(constants.GatewayConfigsFile, flat, ""); err != nil {
		return nil, err
	}

	rows := FilterPortConfigs(flat)
	res.PortRows = len(rows)
	if len(rows) == 0 {
		c.logger.Warn().Msg("no rows matched the port config filter")
		res.PortsPath, err = c.sink.WriteText(constants.GatewayPortConfigsFile, constants.GatewayPortConfigsNoData)
	} else {
		res.PortsPath, err = c.sink.WriteRecords(constants.GatewayPortConfigsFile, rows, "")
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// cachedSiteNames reads site names from SiteList.csv without refreshing it.
func (c *Collector) cachedSiteNames() map[string]string {
	names := make(map[string]string)
	rows, err := c.sink.ReadRecords(constants.SiteListFile)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to load site names")
		return names
	}
	for _, row := range rows {
		name := row["name"]
		if name == "" {
			name = "Unnamed Site"
		}
		names[row["id"]] = name
	}
	return names
}

// FetchGatewayConfigs returns the device config of every inventory gateway,
// tagged with site_id and site_name. Individual fetch failures are logged and
// skipped.
func (c *Collector) FetchGatewayConfigs(ctx context.Context, api GatewayAPI, siteNames map[string]string, opts GatewayOptions) ([]models.Record, error) {
	logger := c.logger
	inventory, err := api.GetOrgInventory(ctx, c.orgID, "gateway")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch org inventory: %w", err)
	}
	logger.Info().Int("devices", len(inventory)).Msg("org inventory loaded")

	var work []gatewayWork
	for _, item := range inventory {
		if item.Type != "gateway" || item.SiteID == "" || item.ID == "" {
			continue
		}
		name, ok := siteNames[item.SiteID]
		if !ok {
			name = "Unknown"
		}
		work = append(work, gatewayWork{siteID: item.SiteID, deviceID: item.ID, siteName: name})
	}
	logger.Info().Int("gateways", len(work)).Msg("prepared gateway config calls")

	bar := opts.Progress
	if bar == nil {
		bar = progress.NewNoOpProgress()
	}
	bar.Start(len(work), "Fetching Configs")
	defer bar.Finish()

	var (
		mu      sync.Mutex
		configs []models.Record
	)
	fetch := func(w gatewayWork) {
		defer bar.Increment()
		cfg, err := api.GetSiteDevice(ctx, w.siteID, w.deviceID)
		if err != nil {
			logger.Warn().Err(err).Str("device_id", w.deviceID).Str("site", w.siteName).Msg("failed to fetch config")
			return
		}
		if cfg == nil {
			logger.Warn().Str("device_id", w.deviceID).Str("site", w.siteName).Msg("empty config, skipping")
			return
		}
		cfg["site_id"] = w.siteID
		cfg["site_name"] = w.siteName
		logger.Debug().Str("device_id", w.deviceID).Str("site", w.siteName).Msg("fetched config")
		mu.Lock()
		configs = append(configs, cfg)
		mu.Unlock()
	}

	if opts.Fast {
		workers := opts.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		logger.Info().Int("tasks", len(work)).Int("workers", workers).Msg("fast mode enabled")

		var g errgroup.Group
		g.SetLimit(workers)
		for _, w := range work {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				fetch(w)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		logger.Info().Msg("fast mode disabled, using rate-limited sequential fetches")
		for _, w := range work {
			if opts.Pacer != nil {
				if err := opts.Pacer.Wait(ctx); err != nil {
					return nil, err
				}
			}
			fetch(w)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(configs, func(i, j int) bool {
		a, b := configs[i], configs[j]
		if an, bn := export.FormatValue(a["site_name"]), export.FormatValue(b["site_name"]); an != bn {
			return an < bn
		}
		return export.FormatValue(a["id"]) < export.FormatValue(b["id"])
	})
	logger.Info().Int("configs", len(configs)).Msg("completed fetching gateway configs")
	return configs, nil
}

// FilterPortConfigs keeps mac, name and the per-port columns (except VPN path
// columns) of rows that set at least one port column.
func FilterPortConfigs(flat []models.Record) []models.Record {
	var portCols []string
	for _, col := range export.Header(flat) {
		if portColumn.MatchString(col) && !strings.Contains(col, "_vpn_paths_") {
			portCols = append(portCols, col)
		}
	}
	if len(portCols) == 0 {
		return nil
	}

	keep := append([]string{"mac", "name"}, portCols...)
	var out []models.Record
	for _, row := range flat {
		matched := false
		for _, col := range portCols {
			if v := export.FormatValue(row[col]); v != "" && v != "null" {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		rec := make(models.Record, len(keep))
		for _, col := range keep {
			rec[col] = export.FormatValue(row[col])
		}
		out = append(out, rec)
	}
	return out
}
