package ids

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"grimm.is/alertwall/internal/validation"
)

// Result is the classifier's verdict on one log line.
type Result int

const (
	MalformedInput Result = iota
	NotAnAlert
	Whitelisted
	DuplicateSuppressed
	Actionable
)

func (r Result) String() string {
	switch r {
	case MalformedInput:
		return "malformed_input"
	case NotAnAlert:
		return "not_an_alert"
	case Whitelisted:
		return "whitelisted"
	case DuplicateSuppressed:
		return "duplicate_suppressed"
	case Actionable:
		return "actionable"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Classification carries the verdict plus what the dispatcher needs to act.
// Address is set for Whitelisted, DuplicateSuppressed and Actionable.
type Classification struct {
	Result    Result
	Address   netip.Addr
	Signature string
	Record    AlertRecord
	Err       error // parse error for MalformedInput
}

// AddressSet is read-only membership over canonical addresses.
type AddressSet interface {
	Contains(addr netip.Addr) bool
}

// Classify decides what to do with one raw log line. It only reads
// whitelist and blocked.
func Classify(raw string, whitelist AddressSet, blocked AddressSet) Classification {
	rec, err := ParseRecord(raw)
	if err != nil {
		return Classification{Result: MalformedInput, Record: rec, Err: err}
	}
	c := Classification{Record: rec, Signature: rec.Signature}

	if rec.EventType != EventTypeAlert || !rec.HasSource {
		c.Result = NotAnAlert
		return c
	}

	addr, err := netip.ParseAddr(rec.SourceAddress)
	if err != nil {
		c.Result = MalformedInput
		c.Err = fmt.Errorf("src_ip: %w", err)
		return c
	}
	c.Address = canonical(addr)

	switch {
	case whitelist != nil && whitelist.Contains(c.Address):
		c.Result = Whitelisted
	case blocked != nil && blocked.Contains(c.Address):
		c.Result = DuplicateSuppressed
	default:
		c.Result = Actionable
	}
	return c
}

// canonical drops zones and IPv4-in-IPv6 mapping so one host has one key.
func canonical(addr netip.Addr) netip.Addr {
	return addr.WithZone("").Unmap()
}

// Whitelist is the set of addresses and prefixes exempt from blocking.
// It is immutable after construction.
type Whitelist struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
	entries  []string
}

// NewWhitelist parses entries (addresses or CIDR prefixes).
func NewWhitelist(entries []string) (*Whitelist, error) {
	w := &Whitelist{addrs: make(map[netip.Addr]struct{})}
	for _, e := range entries {
		p, norm, err := validation.NormalizeIPOrCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("whitelist entry %q: %w", e, err)
		}
		if p.IsSingleIP() {
			w.addrs[canonical(p.Addr())] = struct{}{}
		} else {
			w.prefixes = append(w.prefixes, p)
		}
		w.entries = append(w.entries, norm)
	}
	return w, nil
}

// Contains reports whether addr is exempt.
func (w *Whitelist) Contains(addr netip.Addr) bool {
	if w == nil {
		return false
	}
	addr = canonical(addr)
	if _, ok := w.addrs[addr]; ok {
		return true
	}
	for _, p := range w.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Entries returns the normalized entries in configuration order.
func (w *Whitelist) Entries() []string {
	if w == nil {
		return nil
	}
	return append([]string(nil), w.entries...)
}

// BlockedSet holds the addresses this process has confirmed blocked.
// Entries are never evicted.
type BlockedSet struct {
	mu    sync.RWMutex
	addrs map[netip.Addr]struct{}
}

// NewBlockedSet returns an empty set.
func NewBlockedSet() *BlockedSet {
	return &BlockedSet{addrs: make(map[netip.Addr]struct{})}
}

// Contains reports whether addr was blocked.
func (b *BlockedSet) Contains(addr netip.Addr) bool {
	if b == nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.addrs[canonical(addr)]
	return ok
}

// Add records addr, reporting whether it was new.
func (b *BlockedSet) Add(addr netip.Addr) bool {
	addr = canonical(addr)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.addrs[addr]; ok {
		return false
	}
	b.addrs[addr] = struct{}{}
	return true
}

// Len returns the number of blocked addresses.
func (b *BlockedSet) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.addrs)
}

// Snapshot returns the addresses in sorted order.
func (b *BlockedSet) Snapshot() []netip.Addr {
	b.mu.RLock()
	out := make([]netip.Addr, 0, len(b.addrs))
	for a := range b.addrs {
		out = append(out, a)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
