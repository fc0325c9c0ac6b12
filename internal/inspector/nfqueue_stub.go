//go:build !linux

package inspector

import (
	"context"
	"errors"
)

// Run is unavailable off Linux.
func (i *Inspector) Run(ctx context.Context, cfg Config) error {
	return errors.New("nfqueue is only supported on Linux")
}
