package firewall

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const sampleListing = `Chain ALERTWALL (1 references)
num  target     prot opt source               destination
1    DROP       all  --  10.0.0.9             0.0.0.0/0
2    REJECT     0    --  192.168.7.0/24       0.0.0.0/0            reject-with icmp-port-unreachable
3    ACCEPT     all  --  10.0.0.5             0.0.0.0/0
`

func TestIPTables_EnsureChain_AlreadyPresent(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("Run", "iptables", "-w", "-n", "-L", "ALERTWALL").Return(nil)
	runner.On("Run", "iptables", "-w", "-C", "INPUT", "-j", "ALERTWALL").Return(nil)

	d := NewIPTablesDriver("ALERTWALL", "INPUT", runner)
	require.NoError(t, d.EnsureChain(context.Background()))

	runner.AssertExpectations(t)
	runner.AssertNotCalled(t, "Run", "iptables", "-w", "-N", "ALERTWALL")
	runner.AssertNotCalled(t, "Run", "iptables", "-w", "-I", "INPUT", "1", "-j", "ALERTWALL")
}

func TestIPTables_EnsureChain_CreatesAndHooks(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("Run", "iptables", "-w", "-n", "-L", "ALERTWALL").Return(errors.New("No chain/target/match by that name"))
	runner.On("Run", "iptables", "-w", "-N", "ALERTWALL").Return(nil)
	runner.On("Run", "iptables", "-w", "-C", "INPUT", "-j", "ALERTWALL").Return(errors.New("Bad rule"))
	runner.On("Run", "iptables", "-w", "-I", "INPUT", "1", "-j", "ALERTWALL").Return(nil)

	d := NewIPTablesDriver("ALERTWALL", "INPUT", runner)
	require.NoError(t, d.EnsureChain(context.Background()))
	runner.AssertExpectations(t)
}

func TestIPTables_EnsureChain_HookFailure(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("Run", "iptables", "-w", "-n", "-L", "ALERTWALL").Return(nil)
	runner.On("Run", "iptables", "-w", "-C", "INPUT", "-j", "ALERTWALL").Return(errors.New("Bad rule"))
	runner.On("Run", "iptables", "-w", "-I", "INPUT", "1", "-j", "ALERTWALL").Return(errors.New("Permission denied"))

	d := NewIPTablesDriver("ALERTWALL", "INPUT", runner)
	err := d.EnsureChain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook chain ALERTWALL into INPUT")
}

func TestIPTables_ListRules(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("Output", "iptables", "-w", "-n", "-L", "ALERTWALL", "--line-numbers").Return([]byte(sampleListing), nil)

	d := NewIPTablesDriver("ALERTWALL", "INPUT", runner)
	rules, err := d.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, Rule{ID: 1, Target: "DROP", Protocol: "all", Source: "10.0.0.9", Destination: "any"}, rules[0])
	assert.Equal(t, Rule{ID: 2, Target: "REJECT", Protocol: "all", Source: "192.168.7.0/24", Destination: "any"}, rules[1])
	assert.Equal(t, 3, rules[2].ID)
	assert.Equal(t, "ACCEPT", rules[2].Target)
}

func TestIPTables_ListRules_EmptyChain(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("Output", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]byte("Chain ALERTWALL (1 references)\nnum  target     prot opt source               destination\n"), nil)

	d := NewIPTablesDriver("ALERTWALL", "INPUT", runner)
	rules, err := d.ListRules(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rules)
	assert.Empty(t, rules)
}

func TestIPTables_InsertAndDelete(t *testing.T) {
	runner := new(MockCommandRunner)
	runner.On("Run", "iptables", "-w", "-I", "ALERTWALL", "1", "-s", "10.0.0.5", "-j", "DROP").Return(nil)
	runner.On("Run", "iptables", "-w", "-D", "ALERTWALL", "2").Return(nil)

	d := NewIPTablesDriver("ALERTWALL", "INPUT", runner)
	require.NoError(t, d.InsertRule(context.Background(), "10.0.0.5", "DROP"))
	require.NoError(t, d.DeleteRule(context.Background(), 2))
	runner.AssertExpectations(t)
}

func TestIPTables_CancelledContextRunsNothing(t *testing.T) {
	runner := new(MockCommandRunner)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewIPTablesDriver("ALERTWALL", "INPUT", runner)
	assert.ErrorIs(t, d.InsertRule(ctx, "10.0.0.5", "DROP"), context.Canceled)
	runner.AssertNumberOfCalls(t, "Run", 0)
}

func TestStore_IPTablesRejectsIPv6(t *testing.T) {
	runner := new(MockCommandRunner)
	store := NewStore(NewIPTablesDriver("ALERTWALL", "INPUT", runner))

	_, err := store.Create(context.Background(), "2001:db8::1", "DROP")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ip", verr.Field)
	runner.AssertNumberOfCalls(t, "Run", 0)
}
