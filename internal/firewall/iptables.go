package firewall

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
)

const iptablesBinary = "iptables"

// IPTablesDriver manages the chain through the iptables command line.
// Every invocation passes -w so concurrent iptables users wait for the xtables lock.
type IPTablesDriver struct {
	runner CommandRunner
	chain  string
	parent string
}

// NewIPTablesDriver returns a driver for chain, hooked from parent (usually INPUT).
func NewIPTablesDriver(chain, parent string, runner CommandRunner) *IPTablesDriver {
	if runner == nil {
		runner = DefaultCommandRunner
	}
	return &IPTablesDriver{runner: runner, chain: chain, parent: parent}
}

func (d *IPTablesDriver) Name() string  { return "iptables" }
func (d *IPTablesDriver) Chain() string { return d.chain }

// IPv4Only reports that iptables (as opposed to ip6tables) only matches IPv4.
func (d *IPTablesDriver) IPv4Only() bool { return true }

func (d *IPTablesDriver) run(args ...string) error {
	return d.runner.Run(iptablesBinary, append([]string{"-w"}, args...)...)
}

func (d *IPTablesDriver) EnsureChain(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.run("-n", "-L", d.chain); err != nil {
		if err := d.run("-N", d.chain); err != nil {
			return fmt.Errorf("create chain %s: %w", d.chain, err)
		}
	}
	// -C fails when the jump is absent; only then is it inserted.
	if err := d.run("-C", d.parent, "-j", d.chain); err != nil {
		if err := d.run("-I", d.parent, "1", "-j", d.chain); err != nil {
			return fmt.Errorf("hook chain %s into %s: %w", d.chain, d.parent, err)
		}
	}
	return nil
}

func (d *IPTablesDriver) ListRules(ctx context.Context) ([]Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := d.runner.Output(iptablesBinary, "-w", "-n", "-L", d.chain, "--line-numbers")
	if err != nil {
		return nil, fmt.Errorf("list chain %s: %w", d.chain, err)
	}
	return parseIPTablesListing(out), nil
}

func (d *IPTablesDriver) InsertRule(ctx context.Context, source, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.run("-I", d.chain, "1", "-s", source, "-j", target)
}

func (d *IPTablesDriver) DeleteRule(ctx context.Context, id int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.run("-D", d.chain, strconv.Itoa(id))
}

// parseIPTablesListing reads `iptables -n -L CHAIN --line-numbers` output:
//
//	Chain ALERTWALL (1 references)
//	num  target     prot opt source               destination
//	1    DROP       all  --  10.0.0.5             0.0.0.0/0
func parseIPTablesListing(out []byte) []Rule {
	rules := []Rule{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	line := 0
	for scanner.Scan() {
		line++
		if line <= 2 {
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			continue
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		proto := fields[2]
		if proto == "0" {
			// iptables-nft >= 1.8.9 prints the protocol number
			proto = "all"
		}
		rules = append(rules, Rule{
			ID:          id,
			Target:      fields[1],
			Protocol:    proto,
			Source:      fields[4],
			Destination: DestinationAny,
		})
	}
	return rules
}
