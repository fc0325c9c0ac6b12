package cmd

import (
	"grimm.is/alertwall/internal/inspector"
)

// RunInspect attaches the passive packet inspector to the configured
// NFQUEUE until SIGINT or SIGTERM.
func RunInspect(configFile string) error {
	cfg, logger, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	in := inspector.New(logger)
	err = in.Run(ctx, inspector.Config{
		Queue:        uint16(cfg.Inspector.Queue),
		MaxQueueLen:  uint32(cfg.Inspector.MaxQueueLen),
		MaxPacketLen: uint32(cfg.Inspector.MaxPacketLen),
	})
	stats := in.Stats()
	logger.Info("inspector stopped", "packets", stats.Packets, "malformed", stats.Malformed)
	return err
}
