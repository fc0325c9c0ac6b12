// Package firewall owns the dedicated rule chain that alertwall manages.
//
// A Store serialises every list/insert/delete against a Driver, which
// translates them into packet-filter operations. Three drivers exist:
// IPTablesDriver (iptables command line), NFTablesDriver (native netlink,
// Linux only) and MemoryDriver (in-process, for tests and dry runs).
//
// Rule IDs are 1-based positions inside the chain. They are only stable
// between mutations, so callers must re-list before deleting by ID.
package firewall
