//go:build !linux

package firewall

// Run returns an error on non-Linux systems.
func (r *RealCommandRunner) Run(name string, args ...string) error {
	return ErrNotSupported
}

// Output returns an error on non-Linux systems.
func (r *RealCommandRunner) Output(name string, args ...string) ([]byte, error) {
	return nil, ErrNotSupported
}
