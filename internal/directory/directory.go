// Package directory resolves sites and devices by name or interactive choice,
// backed by the cached SiteList.csv export.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmorrison-juniper/misthelper/internal/constants"
	"github.com/jmorrison-juniper/misthelper/internal/export"
	"github.com/jmorrison-juniper/misthelper/internal/logging"
	"github.com/jmorrison-juniper/misthelper/internal/models"
)

var (
	ErrSiteNotFound   = errors.New("site not found")
	ErrDeviceNotFound = errors.New("device not found")
	ErrNoDevices      = errors.New("no devices found for the selected site")
)

// API is the subset of the Mist client the directory needs.
type API interface {
	ListOrgSites(ctx context.Context, orgID string) ([]models.Record, error)
	ListSiteDevices(ctx context.Context, siteID, deviceType string) ([]models.Record, error)
}

// Directory looks up the sites and devices of one org.
type Directory struct {
	api    API
	sink   *export.Sink
	orgID  string
	window time.Duration
	logger *logging.Logger
}

// New returns a directory for orgID. A zero window uses the default freshness.
func New(api API, sink *export.Sink, orgID string, window time.Duration, logger *logging.Logger) *Directory {
	if window <= 0 {
		window = constants.CSVFreshnessWindow
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Directory{api: api, sink: sink, orgID: orgID, window: window, logger: logger}
}

// RefreshSites exports every org site to SiteList.csv, sorted by name.
func (d *Directory) RefreshSites(ctx context.Context) error {
	if d.orgID == "" {
		return errors.New("org id not set")
	}
	records, err := d.api.ListOrgSites(ctx, d.orgID)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}
	_, err = d.sink.WriteRecords(constants.SiteListFile, records, "name")
	return err
}

// Sites returns the cached site list, regenerating it when stale.
func (d *Directory) Sites(ctx context.Context) ([]models.Site, error) {
	ran, err := export.EnsureFresh(d.sink.Path(constants.SiteListFile), d.window, func() error {
		return d.RefreshSites(ctx)
	})
	if err != nil {
		return nil, err
	}
	if ran {
		d.logger.Info().Str("file", constants.SiteListFile).Msg("site list refreshed")
	} else {
		d.logger.Debug().Str("file", constants.SiteListFile).Msg("using cached site list")
	}

	rows, err := d.sink.ReadRecords(constants.SiteListFile)
	if err != nil {
		return nil, err
	}
	sites := make([]models.Site, 0, len(rows))
	for _, row := range rows {
		sites = append(sites, models.Site{
			ID:          row["id"],
			Name:        row["name"],
			OrgID:       row["org_id"],
			Address:     row["address"],
			CountryCode: row["country_code"],
			Timezone:    row["timezone"],
		})
	}
	return sites, nil
}

// ResolveSite finds a site by exact name or id.
func (d *Directory) ResolveSite(ctx context.Context, nameOrID string) (models.Site, error) {
	sites, err := d.Sites(ctx)
	if err != nil {
		return models.Site{}, err
	}
	for _, s := range sites {
		if s.Name == nameOrID || s.ID == nameOrID {
			return s, nil
		}
	}
	return models.Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, nameOrID)
}

// Devices lists every device of a site, sorted by model, and writes them to
// SiteInventory.csv.
func (d *Directory) Devices(ctx context.Context, siteID string) ([]models.Device, error) {
	records, err := d.api.ListSiteDevices(ctx, siteID, "all")
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoDevices
	}
	if _, err := d.sink.WriteRecords(constants.SiteInventoryFile, records, "model"); err != nil {
		return nil, err
	}

	devices, err := models.DecodeRecords[models.Device](records)
	if err != nil {
		return nil, err
	}
	sortDevices(devices)
	d.logger.Info().Str("site_id", siteID).Int("devices", len(devices)).Msg("device inventory written")
	return devices, nil
}

// ResolveDevice finds a device of a site by exact name, MAC or id.
func (d *Directory) ResolveDevice(ctx context.Context, siteID, nameOrID string) (models.Device, error) {
	devices, err := d.Devices(ctx, siteID)
	if err != nil {
		return models.Device{}, err
	}
	for _, dev := range devices {
		if dev.Name == nameOrID || dev.ID == nameOrID || dev.MAC == nameOrID {
			return dev, nil
		}
	}
	return models.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, nameOrID)
}
