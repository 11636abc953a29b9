package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jmorrison-juniper/misthelper/internal/models"
)

// Prompter reads one line of user input.
type Prompter interface {
	Prompt(label string) (string, error)
}

// ErrInvalidChoice is returned when input matches no index or name.
var ErrInvalidChoice = errors.New("not found by name or index")

// choose picks items[i] for a numeric input, otherwise the first item whose
// name equals the input.
func choose[T any](items []T, name func(T) string, input string) (T, error) {
	var zero T
	input = strings.TrimSpace(input)
	if idx, err := strconv.Atoi(input); err == nil {
		if idx < 0 || idx >= len(items) {
			return zero, fmt.Errorf("invalid index %d", idx)
		}
		return items[idx], nil
	}
	for _, it := range items {
		if name(it) == input {
			return it, nil
		}
	}
	return zero, fmt.Errorf("%q %w", input, ErrInvalidChoice)
}

// SelectSite lists the sites and asks for an index or name.
func (d *Directory) SelectSite(ctx context.Context, p Prompter, out io.Writer) (models.Site, error) {
	sites, err := d.Sites(ctx)
	if err != nil {
		return models.Site{}, err
	}
	if len(sites) == 0 {
		return models.Site{}, ErrSiteNotFound
	}

	fmt.Fprintln(out, "\nAvailable Sites:")
	for i, s := range sites {
		name := s.Name
		if name == "" {
			name = "Unnamed"
		}
		fmt.Fprintf(out, "[%d] %s\n", i, name)
	}

	input, err := p.Prompt("Enter site index or name: ")
	if err != nil {
		return models.Site{}, err
	}
	site, err := choose(sites, func(s models.Site) string { return s.Name }, input)
	if err != nil {
		return models.Site{}, fmt.Errorf("site %w", err)
	}
	fmt.Fprintf(out, "Selected site: %s (ID: %s)\n", site.Name, site.ID)
	d.logger.Info().Str("site_id", site.ID).Str("site", site.Name).Msg("site selected")
	return site, nil
}

// SelectDevice lists the devices of a site and asks for an index or name.
func (d *Directory) SelectDevice(ctx context.Context, siteID string, p Prompter, out io.Writer) (models.Device, error) {
	devices, err := d.Devices(ctx, siteID)
	if err != nil {
		return models.Device{}, err
	}

	fmt.Fprintf(out, "\n%-5s  %-28s  %-12s  %-10s  %s\n", "Index", "name", "mac", "model", "serial")
	for i, dev := range devices {
		fmt.Fprintf(out, "%-5d  %-28s  %-12s  %-10s  %s\n", i, dev.Name, dev.MAC, dev.Model, dev.Serial)
	}

	input, err := p.Prompt("Enter the index or name of the device: ")
	if err != nil {
		return models.Device{}, err
	}
	dev, err := choose(devices, func(d models.Device) string { return d.Name }, input)
	if err != nil {
		return models.Device{}, fmt.Errorf("device %w", err)
	}
	d.logger.Info().Str("device_id", dev.ID).Str("device", dev.DisplayName()).Msg("device selected")
	return dev, nil
}

// SiteAndDevice resolves the given site and device names, prompting for
// whichever is empty.
func (d *Directory) SiteAndDevice(ctx context.Context, site, device string, p Prompter, out io.Writer) (models.Site, models.Device, error) {
	var (
		s   models.Site
		dev models.Device
		err error
	)
	if site != "" {
		s, err = d.ResolveSite(ctx, site)
	} else {
		s, err = d.SelectSite(ctx, p, out)
	}
	if err != nil {
		return s, dev, err
	}

	if device != "" {
		dev, err = d.ResolveDevice(ctx, s.ID, device)
	} else {
		dev, err = d.SelectDevice(ctx, s.ID, p, out)
	}
	return s, dev, err
}

func sortDevices(devices []models.Device) {
	sort.SliceStable(devices, func(i, j int) bool { return devices[i].Model < devices[j].Model })
}
