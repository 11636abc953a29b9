package collector

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jmorrison-juniper/misthelper/internal/constants"
	"github.com/jmorrison-juniper/misthelper/internal/export"
	"github.com/jmorrison-juniper/misthelper/internal/logging"
	"github.com/jmorrison-juniper/misthelper/internal/models"
)

// Fetcher pages through a list or search endpoint.
type Fetcher interface {
	GetAll(ctx context.Context, path string, query url.Values) ([]models.Record, error)
}

// Dataset is one org-level export.
type Dataset struct {
	Name    string
	File    string
	Path    string // %s is replaced by the org id
	Query   url.Values
	SortKey string
}

// Catalog of the org datasets. CoreDatasets is the subset the refresh loop
// keeps current.
var (
	SitesDataset = Dataset{
		Name: "sites", File: constants.SiteListFile,
		Path: "/orgs/%s/sites/search", SortKey: "name",
	}
	InventoryDataset = Dataset{
		Name: "inventory", File: "OrgInventory.csv",
		Path: "/orgs/%s/inventory", SortKey: "model",
	}
	DeviceStatsDataset = Dataset{
		Name: "device-stats", File: "OrgDeviceStats.csv",
		Path: "/orgs/%s/stats/devices", Query: url.Values{"type": {"all"}}, SortKey: "type",
	}
	PortStatsDataset = Dataset{
		Name: "port-stats", File: "OrgDevicePortStats.csv",
		Path: "/orgs/%s/stats/ports/search", SortKey: "mac",
	}
	VPNPeerStatsDataset = Dataset{
		Name: "vpn-peers", File: "OrgVPNPeerStats.csv",
		Path: "/orgs/%s/stats/vpn_peers/search", SortKey: "mac",
	}
	AlarmsDataset = Dataset{
		Name: "alarms", File: "OrgAlarms.csv",
		Path: "/orgs/%s/alarms/search", Query: url.Values{"duration": {"1d"}, "status": {"open"}},
	}
	DeviceEventsDataset = Dataset{
		Name: "device-events", File: "OrgDeviceEvents.csv",
		Path: "/orgs/%s/devices/events/search", Query: url.Values{"device_type": {"all"}, "duration": {"1d"}},
	}
	AuditLogsDataset = Dataset{
		Name: "audit-logs", File: "OrgAuditLogs.csv",
		Path: "/orgs/%s/logs",
	}

	CoreDatasets = []Dataset{SitesDataset, InventoryDataset, DeviceStatsDataset, PortStatsDataset, VPNPeerStatsDataset}
	AllDatasets  = append(append([]Dataset{}, CoreDatasets...), AlarmsDataset, DeviceEventsDataset, AuditLogsDataset)
)

// LookupDataset finds a dataset by name.
func LookupDataset(name string) (Dataset, bool) {
	for _, ds := range AllDatasets {
		if ds.Name == name {
			return ds, true
		}
	}
	return Dataset{}, false
}

// Collector exports datasets of one org.
type Collector struct {
	api    Fetcher
	sink   *export.Sink
	orgID  string
	logger *logging.Logger
}

// New returns a collector for orgID.
func New(api Fetcher, sink *export.Sink, orgID string, logger *logging.Logger) *Collector {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Collector{api: api, sink: sink, orgID: orgID, logger: logger}
}

// Export fetches every page of ds and writes its CSV. Returns the row count.
func (c *Collector) Export(ctx context.Context, ds Dataset) (int, error) {
	c.logger.Info().Str("dataset", ds.Name).Msg("starting export")
	records, err := c.api.GetAll(ctx, fmt.Sprintf(ds.Path, c.orgID), ds.Query)
	if err != nil {
		return 0, fmt.Errorf("%s export failed: %w", ds.Name, err)
	}
	if _, err := c.sink.WriteRecords(ds.File, records, ds.SortKey); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ExportAll exports datasets in order, stopping at the first failure.
func (c *Collector) ExportAll(ctx context.Context, datasets []Dataset) error {
	for _, ds := range datasets {
		if _, err := c.Export(ctx, ds); err != nil {
			return err
		}
	}
	return nil
}
