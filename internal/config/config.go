package config

import (
	"time"
)

// CurrentSchemaVersion defines the current schema version of the configuration.
const CurrentSchemaVersion = "1.0"

// Firewall backends.
const (
	BackendIPTables = "iptables"
	BackendNFTables = "nftables"
	BackendMemory   = "memory"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultLogPath        = "/var/log/suricata/eve.json"
	DefaultAPIURL         = "http://127.0.0.1:5000"
	DefaultListen         = "0.0.0.0:5000"
	DefaultAction         = "DROP"
	DefaultTimeout        = 5 * time.Second
	DefaultPollInterval   = 250 * time.Millisecond
	DefaultChain          = "ALERTWALL"
	DefaultParentChain    = "INPUT"
	DefaultTable          = "alertwall"
	DefaultMaxConnections = 64
	DefaultRetentionDays  = 90
	DefaultMaxQueueLen    = 1024
	DefaultMaxPacketLen   = 0xFFFF
)

// DefaultWhitelist is used when no whitelist is configured.
var DefaultWhitelist = []string{"127.0.0.1"}

// Config is the top-level configuration.
type Config struct {
	// Schema version for backward compatibility (e.g., "1.0")
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	LogLevel string `hcl:"log_level,optional" json:"log_level,omitempty"`
	LogJSON  bool   `hcl:"log_json,optional" json:"log_json,omitempty"`

	Watch     *WatchConfig     `hcl:"watch,block" json:"watch,omitempty"`
	API       *APIConfig       `hcl:"api,block" json:"api,omitempty"`
	Firewall  *FirewallConfig  `hcl:"firewall,block" json:"firewall,omitempty"`
	Inspector *InspectorConfig `hcl:"inspector,block" json:"inspector,omitempty"`
}

// WatchConfig configures the alert monitor.
type WatchConfig struct {
	LogPath   string   `hcl:"log_path,optional" json:"log_path,omitempty"`
	APIURL    string   `hcl:"api_url,optional" json:"api_url,omitempty"`
	Whitelist []string `hcl:"whitelist,optional" json:"whitelist,omitempty"`
	// Action applied to offending sources (ACCEPT, DROP, REJECT)
	Action string `hcl:"action,optional" json:"action,omitempty"`
	// Timeout bounds each control API call, e.g. "5s"
	Timeout      string `hcl:"timeout,optional" json:"timeout,omitempty"`
	PollInterval string `hcl:"poll_interval,optional" json:"poll_interval,omitempty"`
	APIKey       string `hcl:"api_key,optional" json:"api_key,omitempty"`
	// ResyncOnStart seeds the blocked set from GET /api/rules before tailing
	ResyncOnStart bool `hcl:"resync_on_start,optional" json:"resync_on_start,omitempty"`
	// MetricsListen exposes /metrics for the monitor process when set
	MetricsListen string `hcl:"metrics_listen,optional" json:"metrics_listen,omitempty"`
}

// TimeoutDuration returns the parsed timeout. Call after Validate.
func (w *WatchConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(w.Timeout, DefaultTimeout)
}

// PollDuration returns the parsed poll interval. Call after Validate.
func (w *WatchConfig) PollDuration() time.Duration {
	return parseDurationOr(w.PollInterval, DefaultPollInterval)
}

// APIConfig configures the firewall control API.
type APIConfig struct {
	Listen string `hcl:"listen,optional" json:"listen,omitempty"`
	// APIKeyHash is a bcrypt hash; when set, mutations require X-API-Key
	APIKeyHash     string `hcl:"api_key_hash,optional" json:"api_key_hash,omitempty"`
	MaxConnections int    `hcl:"max_connections,optional" json:"max_connections,omitempty"`
	// RateLimit is mutating requests per client per minute (0 = unlimited)
	RateLimit int `hcl:"rate_limit,optional" json:"rate_limit,omitempty"`
	// AuditDB is the sqlite path of the audit trail (empty = disabled)
	AuditDB            string `hcl:"audit_db,optional" json:"audit_db,omitempty"`
	AuditRetentionDays int    `hcl:"audit_retention_days,optional" json:"audit_retention_days,omitempty"`
}

// FirewallConfig selects and names the packet-filter backend.
type FirewallConfig struct {
	Backend     string `hcl:"backend,optional" json:"backend,omitempty"`
	Chain       string `hcl:"chain,optional" json:"chain,omitempty"`
	ParentChain string `hcl:"parent_chain,optional" json:"parent_chain,omitempty"`
	// Table is the nftables inet table (nftables backend only)
	Table string `hcl:"table,optional" json:"table,omitempty"`
}

// InspectorConfig configures the NFQUEUE packet inspector.
type InspectorConfig struct {
	Queue        int `hcl:"queue,optional" json:"queue"`
	MaxQueueLen  int `hcl:"max_queue_len,optional" json:"max_queue_len,omitempty"`
	MaxPacketLen int `hcl:"max_packet_len,optional" json:"max_packet_len,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Watch == nil {
		c.Watch = &WatchConfig{}
	}
	w := c.Watch
	if w.LogPath == "" {
		w.LogPath = DefaultLogPath
	}
	if w.APIURL == "" {
		w.APIURL = DefaultAPIURL
	}
	if w.Whitelist == nil {
		w.Whitelist = append([]string(nil), DefaultWhitelist...)
	}
	if w.Action == "" {
		w.Action = DefaultAction
	}
	if w.Timeout == "" {
		w.Timeout = DefaultTimeout.String()
	}
	if w.PollInterval == "" {
		w.PollInterval = DefaultPollInterval.String()
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListen
	}
	if c.API.MaxConnections == 0 {
		c.API.MaxConnections = DefaultMaxConnections
	}
	if c.API.AuditRetentionDays == 0 {
		c.API.AuditRetentionDays = DefaultRetentionDays
	}

	if c.Firewall == nil {
		c.Firewall = &FirewallConfig{}
	}
	if c.Firewall.Backend == "" {
		c.Firewall.Backend = BackendIPTables
	}
	if c.Firewall.Chain == "" {
		c.Firewall.Chain = DefaultChain
	}
	if c.Firewall.ParentChain == "" {
		c.Firewall.ParentChain = DefaultParentChain
	}
	if c.Firewall.Table == "" {
		c.Firewall.Table = DefaultTable
	}

	if c.Inspector == nil {
		c.Inspector = &InspectorConfig{}
	}
	if c.Inspector.MaxQueueLen == 0 {
		c.Inspector.MaxQueueLen = DefaultMaxQueueLen
	}
	if c.Inspector.MaxPacketLen == 0 {
		c.Inspector.MaxPacketLen = DefaultMaxPacketLen
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
