//go:build !linux

package firewall

func newNFTablesDriver(table, chain string) (Driver, error) {
	return nil, ErrNotSupported
}
