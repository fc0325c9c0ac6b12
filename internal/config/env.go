package config

import (
	"strings"

	"grimm.is/alertwall/internal/brand"
)

// Environment variable suffixes, read as ALERTWALL_<suffix>.
const (
	EnvLogPath   = "LOG_PATH"
	EnvAPIURL    = "API_URL"
	EnvWhitelist = "WHITELIST"
	EnvListen    = "LISTEN"
	EnvBackend   = "BACKEND"
	EnvAPIKey    = "API_KEY"
	EnvLogLevel  = "LOG_LEVEL"
)

// ApplyEnv overlays environment values onto cfg. lookup is usually os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(suffix string) (string, bool) {
		v, ok := lookup(brand.ConfigEnvPrefix + "_" + suffix)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if cfg.Watch == nil {
		cfg.Watch = &WatchConfig{}
	}
	if cfg.API == nil {
		cfg.API = &APIConfig{}
	}
	if cfg.Firewall == nil {
		cfg.Firewall = &FirewallConfig{}
	}

	if v, ok := get(EnvLogPath); ok {
		cfg.Watch.LogPath = v
	}
	if v, ok := get(EnvAPIURL); ok {
		cfg.Watch.APIURL = v
	}
	if v, ok := get(EnvWhitelist); ok {
		cfg.Watch.Whitelist = splitList(v)
	}
	if v, ok := get(EnvAPIKey); ok {
		cfg.Watch.APIKey = v
	}
	if v, ok := get(EnvListen); ok {
		cfg.API.Listen = v
	}
	if v, ok := get(EnvBackend); ok {
		cfg.Firewall.Backend = strings.ToLower(v)
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.LogLevel = v
	}
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
