//go:build linux

package firewall

import (
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"grimm.is/alertwall/internal/validation"
)

// NFTablesConn is the subset of *nftables.Conn the driver uses.
type NFTablesConn interface {
	AddTable(t *nftables.Table) *nftables.Table
	AddChain(c *nftables.Chain) *nftables.Chain
	ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error)
	AddRule(r *nftables.Rule) *nftables.Rule
	InsertRule(r *nftables.Rule) *nftables.Rule
	DelRule(r *nftables.Rule) error
	GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error)
	Flush() error
}

const userDataPrefix = "alertwall:"

// NFTablesDriver manages the chain over netlink. Layout:
//
//	table inet <table> {
//		chain <chain> { ... managed rules ... }
//		chain <chain>_hook { type filter hook input priority filter; jump <chain> }
//	}
type NFTablesDriver struct {
	conn  NFTablesConn
	table *nftables.Table
	chain *nftables.Chain
	hook  *nftables.Chain
}

// NewNFTablesDriver returns a driver operating on conn.
func NewNFTablesDriver(conn NFTablesConn, table, chain string) *NFTablesDriver {
	t := &nftables.Table{Family: nftables.TableFamilyINet, Name: table}
	return &NFTablesDriver{
		conn:  conn,
		table: t,
		chain: &nftables.Chain{Name: chain, Table: t},
		hook: &nftables.Chain{
			Name:     chain + "_hook",
			Table:    t,
			Type:     nftables.ChainTypeFilter,
			Hooknum:  nftables.ChainHookInput,
			Priority: nftables.ChainPriorityFilter,
		},
	}
}

func newNFTablesDriver(table, chain string) (Driver, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("open netlink connection: %w", err)
	}
	return NewNFTablesDriver(conn, table, chain), nil
}

func (d *NFTablesDriver) Name() string  { return "nftables" }
func (d *NFTablesDriver) Chain() string { return d.chain.Name }

func (d *NFTablesDriver) EnsureChain(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chains, err := d.conn.ListChainsOfTableFamily(nftables.TableFamilyINet)
	if err != nil {
		return fmt.Errorf("list chains: %w", err)
	}
	var haveChain, haveHook bool
	for _, c := range chains {
		if c.Table == nil || c.Table.Name != d.table.Name {
			continue
		}
		switch c.Name {
		case d.chain.Name:
			haveChain = true
		case d.hook.Name:
			haveHook = true
		}
	}

	if !haveChain || !haveHook {
		d.conn.AddTable(d.table)
		if !haveChain {
			d.conn.AddChain(d.chain)
		}
		if !haveHook {
			d.conn.AddChain(d.hook)
		}
		if err := d.conn.Flush(); err != nil {
			return fmt.Errorf("create chain %s: %w", d.chain.Name, err)
		}
	}

	hookRules, err := d.conn.GetRules(d.table, d.hook)
	if err != nil {
		return fmt.Errorf("list %s: %w", d.hook.Name, err)
	}
	for _, r := range hookRules {
		if jumpsTo(r, d.chain.Name) {
			return nil
		}
	}
	d.conn.AddRule(&nftables.Rule{
		Table: d.table,
		Chain: d.hook,
		Exprs: []expr.Any{&expr.Verdict{Kind: expr.VerdictJump, Chain: d.chain.Name}},
	})
	if err := d.conn.Flush(); err != nil {
		return fmt.Errorf("hook chain %s: %w", d.chain.Name, err)
	}
	return nil
}

func (d *NFTablesDriver) ListRules(ctx context.Context) ([]Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := d.conn.GetRules(d.table, d.chain)
	if err != nil {
		return nil, fmt.Errorf("list chain %s: %w", d.chain.Name, err)
	}
	rules := make([]Rule, 0, len(raw))
	for i, r := range raw {
		rule := decodeNFTRule(r)
		rule.ID = i + 1
		rules = append(rules, rule)
	}
	return rules, nil
}

func (d *NFTablesDriver) InsertRule(ctx context.Context, source, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix, norm, err := validation.NormalizeIPOrCIDR(source)
	if err != nil {
		return &ValidationError{Field: "ip", Message: err.Error()}
	}
	exprs, err := buildNFTExprs(prefix, target)
	if err != nil {
		return err
	}
	d.conn.InsertRule(&nftables.Rule{
		Table:    d.table,
		Chain:    d.chain,
		Exprs:    exprs,
		UserData: []byte(userDataPrefix + target + ":" + norm),
	})
	return d.conn.Flush()
}

func (d *NFTablesDriver) DeleteRule(ctx context.Context, id int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := d.conn.GetRules(d.table, d.chain)
	if err != nil {
		return fmt.Errorf("list chain %s: %w", d.chain.Name, err)
	}
	if id < 1 || id > len(raw) {
		return fmt.Errorf("no rule at position %d", id)
	}
	if err := d.conn.DelRule(raw[id-1]); err != nil {
		return fmt.Errorf("delete handle %d: %w", raw[id-1].Handle, err)
	}
	return d.conn.Flush()
}

// buildNFTExprs matches the source prefix, counts, and applies target.
func buildNFTExprs(prefix netip.Prefix, target string) ([]expr.Any, error) {
	addr := prefix.Addr()
	var (
		proto  byte
		offset uint32
		length uint32
	)
	if addr.Is4() {
		proto, offset, length = unix.NFPROTO_IPV4, 12, 4
	} else {
		proto, offset, length = unix.NFPROTO_IPV6, 8, 16
	}

	exprs := []expr.Any{
		&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{proto}},
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       offset,
			Len:          length,
		},
	}
	if prefix.Bits() < addr.BitLen() {
		exprs = append(exprs, &expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            length,
			Mask:           prefixMask(prefix.Bits(), int(length)),
			Xor:            make([]byte, length),
		})
	}
	exprs = append(exprs,
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: addr.AsSlice()},
		&expr.Counter{},
	)

	switch target {
	case TargetAccept:
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictAccept})
	case TargetDrop:
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictDrop})
	case TargetReject:
		exprs = append(exprs, &expr.Reject{
			Type: unix.NFT_REJECT_ICMPX_UNREACH,
			Code: unix.NFT_REJECT_ICMPX_ADMIN_PROHIBITED,
		})
	default:
		return nil, &ValidationError{Field: "action", Message: fmt.Sprintf("unsupported target %q", target)}
	}
	return exprs, nil
}

func prefixMask(bits, length int) []byte {
	mask := make([]byte, length)
	for i := 0; i < bits; i++ {
		mask[i/8] |= 0x80 >> (i % 8)
	}
	return mask
}

// decodeNFTRule prefers the metadata written at insert time and falls back
// to reading the expressions of rules added by hand.
func decodeNFTRule(r *nftables.Rule) Rule {
	rule := Rule{Protocol: "all", Destination: DestinationAny}
	if meta, ok := bytes.CutPrefix(r.UserData, []byte(userDataPrefix)); ok {
		if target, source, ok := strings.Cut(string(meta), ":"); ok {
			rule.Target = target
			rule.Source = source
			return rule
		}
	}

	rule.Source = DestinationAny
	var (
		sawPayload bool
		bits       = -1
	)
	for _, e := range r.Exprs {
		switch v := e.(type) {
		case *expr.Payload:
			sawPayload = v.Base == expr.PayloadBaseNetworkHeader &&
				((v.Offset == 12 && v.Len == 4) || (v.Offset == 8 && v.Len == 16))
		case *expr.Bitwise:
			if sawPayload {
				bits = maskBits(v.Mask)
			}
		case *expr.Cmp:
			if !sawPayload {
				continue
			}
			if addr, ok := netip.AddrFromSlice(v.Data); ok {
				if bits < 0 {
					rule.Source = addr.String()
				} else {
					rule.Source = netip.PrefixFrom(addr, bits).String()
				}
			}
			sawPayload = false
		case *expr.Verdict:
			switch v.Kind {
			case expr.VerdictAccept:
				rule.Target = TargetAccept
			case expr.VerdictDrop:
				rule.Target = TargetDrop
			case expr.VerdictJump, expr.VerdictGoto:
				rule.Target = v.Chain
			default:
				rule.Target = "RETURN"
			}
		case *expr.Reject:
			rule.Target = TargetReject
		}
	}
	return rule
}

func maskBits(mask []byte) int {
	n := 0
	for _, b := range mask {
		for i := 7; i >= 0; i-- {
			if b&(1<<i) == 0 {
				return n
			}
			n++
		}
	}
	return n
}

func jumpsTo(r *nftables.Rule, chain string) bool {
	for _, e := range r.Exprs {
		if v, ok := e.(*expr.Verdict); ok && v.Kind == expr.VerdictJump && v.Chain == chain {
			return true
		}
	}
	return false
}
