package firewall

import (
	"fmt"

	"grimm.is/alertwall/internal/config"
)

// NewDriver builds the driver selected by cfg.Backend.
func NewDriver(cfg *config.FirewallConfig) (Driver, error) {
	switch cfg.Backend {
	case config.BackendIPTables:
		return NewIPTablesDriver(cfg.Chain, cfg.ParentChain, DefaultCommandRunner), nil
	case config.BackendNFTables:
		return newNFTablesDriver(cfg.Table, cfg.Chain)
	case config.BackendMemory:
		return NewMemoryDriver(cfg.Chain), nil
	default:
		return nil, fmt.Errorf("unknown firewall backend %q", cfg.Backend)
	}
}
