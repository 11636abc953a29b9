// Package models holds the Mist API payloads misthelper decodes.
package models

import (
	"encoding/json"
	"fmt"
)

// Record is one loosely typed API object as decoded from JSON.
// Exports flatten records rather than mapping every vendor field.
type Record = map[string]any

// Site is the subset of a site object used for lookups and prompts.
type Site struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OrgID       string `json:"org_id,omitempty"`
	Address     string `json:"address,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

// Device is a device as returned by the site device list.
type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	MAC    string `json:"mac"`
	Model  string `json:"model,omitempty"`
	Serial string `json:"serial,omitempty"`
	Type   string `json:"type,omitempty"`
	SiteID string `json:"site_id,omitempty"`
}

// DisplayName returns the name, or the MAC for unnamed devices.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.MAC
}

// InventoryItem is one entry of the org inventory.
type InventoryItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MAC       string `json:"mac"`
	Model     string `json:"model"`
	Serial    string `json:"serial"`
	Type      string `json:"type"`
	SiteID    string `json:"site_id"`
	Connected bool   `json:"connected"`
}

// APIUsage is the response of GET /self/usage.
type APIUsage struct {
	Requests     int `json:"requests"`
	RequestLimit int `json:"request_limit"`
}

// ShellSession is returned when a remote shell is opened on a device.
type ShellSession struct {
	URL     string `json:"url"`
	Session string `json:"session,omitempty"`
}

// CommandSession identifies the stream carrying a triggered command's output.
type CommandSession struct {
	Session string `json:"session"`
}

// Privilege is one scope granted to the token owner.
type Privilege struct {
	Scope  string `json:"scope"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	OrgID  string `json:"org_id,omitempty"`
	SiteID string `json:"site_id,omitempty"`
}

// Self describes the token owner.
type Self struct {
	Email      string      `json:"email"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name"`
	Privileges []Privilege `json:"privileges"`
}

// Orgs returns the org-scoped privileges in response order.
func (s *Self) Orgs() []Privilege {
	var orgs []Privilege
	for _, p := range s.Privileges {
		if p.Scope == "org" && p.OrgID != "" {
			orgs = append(orgs, p)
		}
	}
	return orgs
}

// DecodeRecords re-decodes loosely typed records into T.
func DecodeRecords[T any](records []Record) ([]T, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return out, nil
}
