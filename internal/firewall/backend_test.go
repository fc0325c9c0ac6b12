package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/alertwall/internal/config"
)

func TestNewDriver(t *testing.T) {
	d, err := NewDriver(&config.FirewallConfig{Backend: config.BackendMemory, Chain: "ALERTWALL"})
	require.NoError(t, err)
	assert.Equal(t, "memory", d.Name())
	assert.Equal(t, "ALERTWALL", d.Chain())

	d, err = NewDriver(&config.FirewallConfig{Backend: config.BackendIPTables, Chain: "ALERTWALL", ParentChain: "INPUT"})
	require.NoError(t, err)
	assert.Equal(t, "iptables", d.Name())

	_, err = NewDriver(&config.FirewallConfig{Backend: "pf"})
	assert.Error(t, err)
}
