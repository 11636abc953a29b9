package directory

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jmorrison-juniper/misthelper/internal/export"
	"github.com/jmorrison-juniper/misthelper/internal/models"
)

type fakeAPI struct {
	sites      []models.Record
	devices    map[string][]models.Record
	siteCalls  int
	deviceType string
}

func (f *fakeAPI) ListOrgSites(ctx context.Context, orgID string) ([]models.Record, error) {
	f.siteCalls++
	return f.sites, nil
}

func (f *fakeAPI) ListSiteDevices(ctx context.Context, siteID, deviceType string) ([]models.Record, error) {
	f.deviceType = deviceType
	return f.devices[siteID], nil
}

type answers []string

func (a *answers) Prompt(label string) (string, error) {
	if len(*a) == 0 {
		return "", errors.New("no input")
	}
	next := (*a)[0]
	*a = (*a)[1:]
	return next, nil
}

func newTestDirectory(t *testing.T) (*Directory, *fakeAPI, *export.Sink) {
	t.Helper()
	api := &fakeAPI{
		sites: []models.Record{
			{"id": "s2", "name": "Warehouse", "address": "2 Dock Rd"},
			{"id": "s1", "name": "HQ", "latlng": map[string]any{"lat": 1.5, "lng": 2.5}},
		},
		devices: map[string][]models.Record{
			"s1": {
				{"id": "d1", "name": "sw-core", "mac": "aa", "model": "EX4400"},
				{"id": "d2", "name": "ap-lobby", "mac": "bb", "model": "AP45"},
			},
		},
	}
	sink := export.NewSink(t.TempDir(), nil)
	return New(api, sink, "org-1", time.Minute, nil), api, sink
}

func TestSitesCachesList(t *testing.T) {
	d, api, sink := newTestDirectory(t)

	sites, err := d.Sites(context.Background())
	if err != nil {
		t.Fatalf("Sites: %v", err)
	}
	if len(sites) != 2 || sites[0].Name != "HQ" || sites[1].Address != "2 Dock Rd" {
		t.Errorf("sites = %+v", sites)
	}
	if _, err := d.Sites(context.Background()); err != nil {
		t.Fatal(err)
	}
	if api.siteCalls != 1 {
		t.Errorf("ListOrgSites called %d times, want 1", api.siteCalls)
	}

	data, _ := os.ReadFile(sink.Path("SiteList.csv"))
	if !strings.HasPrefix(string(data), "address,id,latlng_lat,latlng_lng,name\n") {
		t.Errorf("SiteList.csv header = %q", data)
	}
}

func TestResolveSite(t *testing.T) {
	d, _, _ := newTestDirectory(t)
	ctx := context.Background()

	for _, in := range []string{"Warehouse", "s2"} {
		site, err := d.ResolveSite(ctx, in)
		if err != nil || site.ID != "s2" {
			t.Errorf("ResolveSite(%q) = %+v, %v", in, site, err)
		}
	}
	if _, err := d.ResolveSite(ctx, "warehouse"); !errors.Is(err, ErrSiteNotFound) {
		t.Errorf("err = %v, want ErrSiteNotFound", err)
	}
}

func TestDevicesSortedAndWritten(t *testing.T) {
	d, api, sink := newTestDirectory(t)

	devices, err := d.Devices(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if api.deviceType != "all" {
		t.Errorf("device type = %q, want all", api.deviceType)
	}
	if devices[0].Model != "AP45" || devices[1].Model != "EX4400" {
		t.Errorf("devices not sorted by model: %+v", devices)
	}
	rows, err := sink.ReadRecords("SiteInventory.csv")
	if err != nil || len(rows) != 2 || rows[0]["name"] != "ap-lobby" {
		t.Errorf("SiteInventory.csv = %v, %v", rows, err)
	}

	if _, err := d.Devices(context.Background(), "empty"); !errors.Is(err, ErrNoDevices) {
		t.Errorf("err = %v, want ErrNoDevices", err)
	}
}

func TestSelectSiteAndDevice(t *testing.T) {
	tests := []struct {
		name       string
		input      answers
		wantSite   string
		wantDevice string
		wantErr    bool
	}{
		{name: "by index", input: answers{"0", "1"}, wantSite: "s1", wantDevice: "d1"},
		{name: "by name", input: answers{"HQ", "ap-lobby"}, wantSite: "s1", wantDevice: "d2"},
		{name: "bad index", input: answers{"7"}, wantErr: true},
		{name: "unknown name", input: answers{"HQ", "nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _ := newTestDirectory(t)
			var out bytes.Buffer
			in := tt.input
			site, dev, err := d.SiteAndDevice(context.Background(), "", "", &in, &out)
			if tt.wantErr {
				if err == nil {
					t.Fatal("want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("SiteAndDevice: %v", err)
			}
			if site.ID != tt.wantSite || dev.ID != tt.wantDevice {
				t.Errorf("got %s/%s, want %s/%s", site.ID, dev.ID, tt.wantSite, tt.wantDevice)
			}
			if !strings.Contains(out.String(), "[0] HQ") {
				t.Errorf("listing = %q", out.String())
			}
		})
	}
}

func TestSiteAndDeviceByName(t *testing.T) {
	d, _, _ := newTestDirectory(t)
	site, dev, err := d.SiteAndDevice(context.Background(), "HQ", "sw-core", nil, &bytes.Buffer{})
	if err != nil || site.ID != "s1" || dev.ID != "d1" {
		t.Errorf("got %+v %+v %v", site, dev, err)
	}
}
