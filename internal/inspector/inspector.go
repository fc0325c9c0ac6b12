package inspector

import (
	"sync/atomic"

	"grimm.is/alertwall/internal/logging"
	"grimm.is/alertwall/internal/metrics"
)

// Config mirrors the inspector block of the configuration file.
type Config struct {
	Queue        uint16
	MaxQueueLen  uint32
	MaxPacketLen uint32
}

// Stats counts what the inspector has seen.
type Stats struct {
	Packets   uint64 `json:"packets"`
	Malformed uint64 `json:"malformed"`
}

// Inspector decodes and records packets. It never makes a drop decision.
type Inspector struct {
	logger    *logging.Logger
	metrics   *metrics.Registry
	packets   atomic.Uint64
	malformed atomic.Uint64
}

// New returns an inspector that logs through logger.
func New(logger *logging.Logger) *Inspector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Inspector{
		logger:  logger.WithComponent("inspector"),
		metrics: metrics.Get(),
	}
}

// Inspect decodes one packet payload and records it.
func (i *Inspector) Inspect(payload []byte) (Packet, bool) {
	i.packets.Add(1)
	p, err := ParsePacket(payload)
	if err != nil {
		i.malformed.Add(1)
		i.metrics.InspectedPackets.WithLabelValues("unknown").Inc()
		i.logger.Debug("undecodable packet", "error", err, "len", len(payload))
		return Packet{}, false
	}
	i.metrics.InspectedPackets.WithLabelValues(p.Protocol).Inc()
	i.logger.Info("packet", "src", p.Src.String(), "dst", p.Dst.String(), "protocol", p.Protocol,
		"sport", p.SrcPort, "dport", p.DstPort, "len", p.Length)
	return p, true
}

// Stats returns the current counters.
func (i *Inspector) Stats() Stats {
	return Stats{Packets: i.packets.Load(), Malformed: i.malformed.Load()}
}
