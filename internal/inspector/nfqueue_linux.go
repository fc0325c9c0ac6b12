//go:build linux

package inspector

import (
	"context"
	"fmt"

	"github.com/florianl/go-nfqueue/v2"
)

// Run attaches to the configured queue and inspects packets until ctx is
// cancelled. Every packet is accepted.
func (i *Inspector) Run(ctx context.Context, cfg Config) error {
	nf, err := nfqueue.Open(&nfqueue.Config{
		NfQueue:      cfg.Queue,
		MaxPacketLen: cfg.MaxPacketLen,
		MaxQueueLen:  cfg.MaxQueueLen,
		Copymode:     nfqueue.NfQnlCopyPacket,
	})
	if err != nil {
		return fmt.Errorf("failed to open nfqueue %d: %w", cfg.Queue, err)
	}
	defer nf.Close()

	err = nf.RegisterWithErrorFunc(ctx,
		func(a nfqueue.Attribute) int {
			if a.Payload != nil {
				i.Inspect(*a.Payload)
			}
			if a.PacketID != nil {
				if err := nf.SetVerdict(*a.PacketID, nfqueue.NfAccept); err != nil {
					i.logger.Warn("failed to set verdict", "packet_id", *a.PacketID, "error", err)
				}
			}
			return 0
		},
		func(err error) int {
			if ctx.Err() == nil {
				i.logger.Warn("nfqueue receive error", "error", err)
			}
			return 0
		},
	)
	if err != nil {
		return fmt.Errorf("failed to register nfqueue callback: %w", err)
	}

	i.logger.Info("listening on nfqueue", "queue", cfg.Queue, "max_queue_len", cfg.MaxQueueLen)
	<-ctx.Done()
	return nil
}
