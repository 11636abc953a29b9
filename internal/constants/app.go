package constants

import (
	"time"
)

// Mist API defaults
const (
	// DefaultAPIHost - Mist global cloud API host
	// Regional clouds use api.eu.mist.com, api.gc1.mist.com, etc.
	DefaultAPIHost = "api.mist.com"

	// APIPrefix - versioned REST prefix for every request path
	APIPrefix = "/api/v1"

	// StreamPath - websocket streaming endpoint on the api-ws host
	StreamPath = "/api-ws/v1/stream"

	// DefaultPageLimit - page size requested from list and search endpoints
	DefaultPageLimit = 1000

	// DefaultRequestLimit - hourly request budget assumed before the first usage query
	DefaultRequestLimit = 5000
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30 seconds)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPClientTimeout - overall request timeout for REST calls (120 seconds)
	HTTPClientTimeout = 120 * time.Second
)

// Pagination Safety Limits
const (
	// MaxPaginationPages - maximum pages to fetch before stopping (prevents infinite loops)
	// 1000 pages * 1000 items = 1M records, far above any org we have seen
	MaxPaginationPages = 1000
)

// Device session timings
const (
	// CommandOutputTimeout - hard limit for a one-shot command stream (30 seconds)
	CommandOutputTimeout = 30 * time.Second

	// CommandIdleTimeout - close the stream this long after the last frame once output arrived
	CommandIdleTimeout = 3 * time.Second

	// SessionPollInterval - supervisor poll period for the command stream
	SessionPollInterval = 1 * time.Second

	// ShellWakeupDelay - pause after connecting before the wakeup keystrokes
	// Session Smart Router CLIs print nothing until they see a keypress.
	ShellWakeupDelay = 1 * time.Second

	// ShellCommandTimeout - upper bound for a captured shell command (2 minutes)
	ShellCommandTimeout = 2 * time.Minute

	// TerminalColumns / TerminalRows - emulated screen size
	TerminalColumns = 80
	TerminalRows    = 40
)

// Shell protocol bytes
const (
	// ShellFramePrefix - marker byte that precedes every keystroke frame
	ShellFramePrefix = "\x00"

	// ShellWakeupSequence - sent once after connecting
	ShellWakeupSequence = "\x00\n\n"

	// ShellExitKey - local key that ends an interactive session
	ShellExitKey = "~"

	// ShellDoneMarker - echoed by captured commands when output is complete
	ShellDoneMarker = "DONE!"
)

// Export and cache settings
const (
	// CSVFreshnessWindow - cached CSV files younger than this are reused (15 minutes)
	CSVFreshnessWindow = 15 * time.Minute

	// StopLoopFile - presence of this file ends the refresh loop
	StopLoopFile = "stop_loop.txt"

	// SiteListFile - cached org site list used by name lookups and prompts
	SiteListFile = "SiteList.csv"

	// SiteInventoryFile - device list of the last selected site
	SiteInventoryFile = "SiteInventory.csv"

	// ARP output files
	ARPRawFile      = "arp_output_raw.txt"
	ARPDataset1File = "arp_dataset1.csv"
	ARPDataset2File = "arp_dataset2.csv"

	// Gateway config exports
	GatewayConfigsFile       = "AllSiteGatewayConfigs.csv"
	GatewayPortConfigsFile   = "FilteredGatewayPortConfigs.csv"
	GatewayPortConfigsNoData = "No matching data found.\n"
)

// Rate controller persistence
const (
	// TuningFile - persisted controller gains and integral
	TuningFile = "tuning_data.json"

	// DelayMetricsFile - append-only NDJSON diagnostic log
	DelayMetricsFile = "delay_metrics.json"
)

// Logging
const (
	// LogFile - rotating application log
	LogFile = "script.log"

	// LogMaxSizeMB - rotate after ~1 GB
	LogMaxSizeMB = 1000

	// LogMaxBackups - rotated files kept on disk
	LogMaxBackups = 2

	// APIStatsInterval - how often the API client logs request rates
	APIStatsInterval = 30 * time.Second
)
