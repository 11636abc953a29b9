package api

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/jmorrison-juniper/misthelper/internal/models"
)

// GetSelf returns the token owner and their privileges.
func (c *Client) GetSelf(ctx context.Context) (*models.Self, error) {
	var self models.Self
	if err := c.getJSON(ctx, "get self", "/self", nil, &self); err != nil {
		return nil, err
	}
	return &self, nil
}

// GetSelfAPIUsage returns the requests spent in the current hour and the hourly limit.
func (c *Client) GetSelfAPIUsage(ctx context.Context) (*models.APIUsage, error) {
	var usage models.APIUsage
	if err := c.getJSON(ctx, "get API usage", "/self/usage", nil, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

// FetchUsage adapts GetSelfAPIUsage to the rate controller's usage source.
func (c *Client) FetchUsage(ctx context.Context) (used, limit int, err error) {
	usage, err := c.GetSelfAPIUsage(ctx)
	if err != nil {
		return 0, 0, err
	}
	return usage.Requests, usage.RequestLimit, nil
}

// ListOrgSites returns every site in the org as raw records; decode with
// models.DecodeRecords when typed fields are enough.
func (c *Client) ListOrgSites(ctx context.Context, orgID string) ([]models.Record, error) {
	return c.GetAll(ctx, fmt.Sprintf("/orgs/%s/sites", orgID), nil)
}

// ListSiteDevices returns the devices of a site. deviceType is "all", "ap",
// "switch" or "gateway"; empty means the API default (ap).
func (c *Client) ListSiteDevices(ctx context.Context, siteID, deviceType string) ([]models.Record, error) {
	q := url.Values{}
	if deviceType != "" {
		q.Set("type", deviceType)
	}
	return c.GetAll(ctx, fmt.Sprintf("/sites/%s/devices", siteID), q)
}

// GetSiteDevice returns the full configuration object of one device.
func (c *Client) GetSiteDevice(ctx context.Context, siteID, deviceID string) (models.Record, error) {
	var device models.Record
	path := fmt.Sprintf("/sites/%s/devices/%s", siteID, deviceID)
	if err := c.getJSON(ctx, "get site device", path, nil, &device); err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("get site device %s: %w", deviceID, ErrEmptyResponse)
	}
	return device, nil
}

// GetOrgInventory returns the org inventory, optionally filtered by device type.
func (c *Client) GetOrgInventory(ctx context.Context, orgID, deviceType string) ([]models.InventoryItem, error) {
	q := url.Values{}
	if deviceType != "" {
		q.Set("type", deviceType)
	}
	records, err := c.GetAll(ctx, fmt.Sprintf("/orgs/%s/inventory", orgID), q)
	if err != nil {
		return nil, err
	}
	return models.DecodeRecords[models.InventoryItem](records)
}

// CreateShellSession opens a remote shell on a device and returns its websocket URL.
func (c *Client) CreateShellSession(ctx context.Context, siteID, deviceID string) (*models.ShellSession, error) {
	path := fmt.Sprintf("/sites/%s/devices/%s/shell", siteID, deviceID)
	resp, err := c.doRequest(ctx, "POST", path, nil, struct{}{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return nil, newAPIError("create shell session", resp)
	}

	var shell models.ShellSession
	if err := json.NewDecoder(resp.Body).Decode(&shell); err != nil {
		return nil, fmt.Errorf("failed to decode shell session: %w", err)
	}
	if shell.URL == "" {
		return nil, fmt.Errorf("create shell session: response has no url")
	}
	return &shell, nil
}

// TriggerDeviceCommand asks a device to run a command (e.g. "arp") whose output
// is streamed on the device's cmd channel under the returned session id.
// Anything other than 200 is an error.
func (c *Client) TriggerDeviceCommand(ctx context.Context, siteID, deviceID, command string) (*models.CommandSession, error) {
	path := fmt.Sprintf("/sites/%s/devices/%s/%s", siteID, deviceID, url.PathEscape(command))
	resp, err := c.doRequest(ctx, "POST", path, nil, struct{}{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return nil, newAPIError("trigger "+command+" command", resp)
	}

	var session models.CommandSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode command session: %w", err)
	}
	if session.Session == "" {
		return nil, fmt.Errorf("trigger %s command: response has no session", command)
	}
	return &session, nil
}
