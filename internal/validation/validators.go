// Package validation holds the input checks shared by the control API,
// the rule store and the configuration loader.
package validation

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

// Chain and table names: alphanumeric, dash, underscore; iptables caps chain names at 28 chars.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,28}$`)

// ValidateIdentifier validates a chain or table name.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid identifier %q: must be 1-28 alphanumeric, dash or underscore characters", id)
	}
	return nil
}

// NormalizeIPOrCIDR validates an IP address or CIDR range and returns its
// canonical form. Host prefixes (/32, /128) collapse to the bare address and
// network prefixes are masked, so "10.0.0.7/24" becomes "10.0.0.0/24".
func NormalizeIPOrCIDR(s string) (netip.Prefix, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Prefix{}, "", fmt.Errorf("IP/CIDR cannot be empty")
	}

	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, "", fmt.Errorf("invalid CIDR: %w", err)
		}
		p = p.Masked()
		if p.Addr().Is4In6() {
			return netip.Prefix{}, "", fmt.Errorf("invalid CIDR: IPv4-mapped IPv6 prefix %s", s)
		}
		if p.IsSingleIP() {
			return p, p.Addr().String(), nil
		}
		return p, p.String(), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, "", fmt.Errorf("invalid IP address: %s", s)
	}
	if addr.Zone() != "" {
		return netip.Prefix{}, "", fmt.Errorf("invalid IP address: zoned address %s", s)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), addr.String(), nil
}

// ValidateIPOrCIDR validates an IP address or CIDR range
func ValidateIPOrCIDR(s string) error {
	_, _, err := NormalizeIPOrCIDR(s)
	return err
}

// ValidateAllowlist checks if a value is in an allowed list
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("value %q not in allowed list: %v", value, allowed)
}
