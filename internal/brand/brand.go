// Package brand holds the product identity shared by every subcommand:
// binary name, default paths and the environment variable prefix.
package brand

import (
	"os"
	"path/filepath"
)

const (
	Name             = "Alertwall"
	LowerName        = "alertwall"
	Description      = "Automated intrusion response for Suricata alerts"
	ConfigEnvPrefix  = "ALERTWALL"
	DefaultConfigDir = "/etc/alertwall"
	DefaultStateDir  = "/var/lib/alertwall"
	ConfigFileName   = "alertwall.hcl"
	BinaryName       = "alertwall"
)

// Version is set at build time via -ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// UserAgent returns a User-Agent string for HTTP requests
func UserAgent() string {
	return Name + "/" + Version
}

// DefaultConfigFile returns the configuration path used when -c is not given.
// ALERTWALL_CONFIG takes precedence over the compiled-in default.
func DefaultConfigFile() string {
	if p := os.Getenv(ConfigEnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir, ConfigFileName)
}

// GetStateDir returns the state directory, checking env vars first.
// Priority: ALERTWALL_STATE_DIR > DefaultStateDir
func GetStateDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_STATE_DIR"); dir != "" {
		return dir
	}
	return DefaultStateDir
}
