package firewall

import (
	"context"
	"fmt"
	"sync"
)

// MemoryDriver simulates the packet filter in process. It backs the
// "memory" dry-run backend and the store tests.
type MemoryDriver struct {
	mu      sync.Mutex
	chain   string
	created bool
	hooks   int
	rules   []Rule

	// FailOn, when set, is consulted before each operation ("ensure",
	// "list", "insert", "delete"); a non-nil result is returned as the
	// engine failure and the operation is not applied.
	FailOn func(op string) error
}

// NewMemoryDriver returns an empty simulated chain.
func NewMemoryDriver(chain string) *MemoryDriver {
	return &MemoryDriver{chain: chain}
}

func (d *MemoryDriver) Name() string  { return "memory" }
func (d *MemoryDriver) Chain() string { return d.chain }

func (d *MemoryDriver) fail(op string) error {
	if d.FailOn == nil {
		return nil
	}
	return d.FailOn(op)
}

func (d *MemoryDriver) EnsureChain(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("ensure"); err != nil {
		return err
	}
	d.created = true
	if d.hooks == 0 {
		d.hooks++
	}
	return nil
}

func (d *MemoryDriver) ListRules(ctx context.Context) ([]Rule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("list"); err != nil {
		return nil, err
	}
	if !d.created {
		return nil, fmt.Errorf("chain %s does not exist", d.chain)
	}
	out := make([]Rule, len(d.rules))
	for i, r := range d.rules {
		r.ID = i + 1
		out[i] = r
	}
	return out, nil
}

func (d *MemoryDriver) InsertRule(ctx context.Context, source, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("insert"); err != nil {
		return err
	}
	if !d.created {
		return fmt.Errorf("chain %s does not exist", d.chain)
	}
	rule := Rule{Target: target, Protocol: "all", Source: source, Destination: DestinationAny}
	d.rules = append([]Rule{rule}, d.rules...)
	return nil
}

func (d *MemoryDriver) DeleteRule(ctx context.Context, id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("delete"); err != nil {
		return err
	}
	if id < 1 || id > len(d.rules) {
		return fmt.Errorf("index of deletion too big: %d", id)
	}
	d.rules = append(d.rules[:id-1], d.rules[id:]...)
	return nil
}

// Hooks reports how many times the chain was hooked into the inbound path.
func (d *MemoryDriver) Hooks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hooks
}

// Len returns the number of rules in the simulated chain.
func (d *MemoryDriver) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rules)
}
