// Package inspector is a passive NFQUEUE consumer. It decodes the network
// header of each queued packet, logs and counts it, and always hands the
// packet back to the kernel with an ACCEPT verdict.
package inspector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

var (
	errShortPacket = errors.New("packet too short")
	errBadVersion  = errors.New("not an IPv4 or IPv6 packet")
)

// Packet is the decoded network header of a queued packet.
type Packet struct {
	Src      netip.Addr
	Dst      netip.Addr
	Protocol string
	Length   int
	SrcPort  uint16
	DstPort  uint16
}

func (p Packet) String() string {
	if p.SrcPort != 0 || p.DstPort != 0 {
		return fmt.Sprintf("%s %s:%d -> %s:%d", p.Protocol, p.Src, p.SrcPort, p.Dst, p.DstPort)
	}
	return fmt.Sprintf("%s %s -> %s", p.Protocol, p.Src, p.Dst)
}

// ParsePacket decodes an IPv4 or IPv6 header and, for TCP and UDP, the ports.
func ParsePacket(payload []byte) (Packet, error) {
	if len(payload) < 1 {
		return Packet{}, errShortPacket
	}
	switch payload[0] >> 4 {
	case 4:
		return parseIPv4(payload)
	case 6:
		return parseIPv6(payload)
	default:
		return Packet{}, errBadVersion
	}
}

func parseIPv4(payload []byte) (Packet, error) {
	if len(payload) < 20 {
		return Packet{}, errShortPacket
	}
	ihl := int(payload[0]&0x0f) * 4
	if ihl < 20 || len(payload) < ihl {
		return Packet{}, fmt.Errorf("bad IPv4 header length %d", ihl)
	}
	p := Packet{
		Src:    netip.AddrFrom4([4]byte(payload[12:16])),
		Dst:    netip.AddrFrom4([4]byte(payload[16:20])),
		Length: int(binary.BigEndian.Uint16(payload[2:4])),
	}
	proto := int(payload[9])
	p.Protocol = protocolName(proto, false)
	p.SrcPort, p.DstPort = ports(proto, payload[ihl:])
	return p, nil
}

func parseIPv6(payload []byte) (Packet, error) {
	if len(payload) < 40 {
		return Packet{}, errShortPacket
	}
	p := Packet{
		Src:    netip.AddrFrom16([16]byte(payload[8:24])),
		Dst:    netip.AddrFrom16([16]byte(payload[24:40])),
		Length: int(binary.BigEndian.Uint16(payload[4:6])) + 40,
	}
	// Extension headers are not walked; the next header is reported as is.
	next := int(payload[6])
	p.Protocol = protocolName(next, true)
	p.SrcPort, p.DstPort = ports(next, payload[40:])
	return p, nil
}

func ports(proto int, l4 []byte) (uint16, uint16) {
	if (proto != unix.IPPROTO_TCP && proto != unix.IPPROTO_UDP) || len(l4) < 4 {
		return 0, 0
	}
	return binary.BigEndian.Uint16(l4[0:2]), binary.BigEndian.Uint16(l4[2:4])
}

func protocolName(proto int, v6 bool) string {
	switch proto {
	case unix.IPPROTO_TCP:
		return "tcp"
	case unix.IPPROTO_UDP:
		return "udp"
	case unix.IPPROTO_ICMP:
		return "icmp"
	case unix.IPPROTO_ICMPV6:
		return "icmpv6"
	}
	if v6 {
		return fmt.Sprintf("ipv6/%d", proto)
	}
	return fmt.Sprintf("ip/%d", proto)
}
