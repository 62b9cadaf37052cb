package model

import (
	"fmt"
	"net"
	"net/netip"
	"time"
)

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// PacketInfo holds the metadata extracted from a single IPv4/TCP packet.
type PacketInfo struct {
	Timestamp time.Time
	FiveTuple FiveTuple
	Length    int
	// TCPFlags is the symbolic flag string, e.g. "S", "SA", "PA".
	TCPFlags string
	// Raw is the original frame, kept for evidence capture. May be nil.
	Raw []byte
}

// Key returns the flow key of the packet's direction.
func (p *PacketInfo) Key() FlowKey {
	return FlowKey{
		SrcIP:   addrFromIP(p.FiveTuple.SrcIP),
		DstIP:   addrFromIP(p.FiveTuple.DstIP),
		SrcPort: p.FiveTuple.SrcPort,
		DstPort: p.FiveTuple.DstPort,
	}
}

func addrFromIP(ip net.IP) netip.Addr {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// FlowKey identifies one direction of one TCP connection. The reverse
// direction is a different key.
type FlowKey struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", k.SrcIP, k.SrcPort, k.DstIP, k.DstPort)
}

// FlowState is the running aggregate of a single flow.
type FlowState struct {
	PacketCount uint64
	ByteCount   uint64
	StartTime   time.Time
	LastTime    time.Time
}

// FeatureRecord is the per-packet feature vector handed to detection.
type FeatureRecord struct {
	Key          FlowKey
	PacketSize   int
	PacketRate   float64
	ByteRate     float64
	TCPFlags     string
	FlowDuration float64
	PacketCount  uint64
	ByteCount    uint64
	// DstSpread estimates the distinct destinations the source has sent to
	// in the current window. Zero when spread tracking is off.
	DstSpread uint32
}

// Feature names that rules may reference.
const (
	FeaturePacketSize   = "packet_size"
	FeaturePacketRate   = "packet_rate"
	FeatureByteRate     = "byte_rate"
	FeatureFlowDuration = "flow_duration"
	FeaturePacketCount  = "packet_count"
	FeatureByteCount    = "byte_count"
	FeatureSrcPort      = "src_port"
	FeatureDstPort      = "dst_port"
	FeatureDstSpread    = "dst_spread"
)

// Value looks up a numeric feature by name. The second result is false for
// names that are not part of the record.
func (f *FeatureRecord) Value(name string) (float64, bool) {
	switch name {
	case FeaturePacketSize:
		return float64(f.PacketSize), true
	case FeaturePacketRate:
		return f.PacketRate, true
	case FeatureByteRate:
		return f.ByteRate, true
	case FeatureFlowDuration:
		return f.FlowDuration, true
	case FeaturePacketCount:
		return float64(f.PacketCount), true
	case FeatureByteCount:
		return float64(f.ByteCount), true
	case FeatureSrcPort:
		return float64(f.Key.SrcPort), true
	case FeatureDstPort:
		return float64(f.Key.DstPort), true
	case FeatureDstSpread:
		return float64(f.DstSpread), true
	}
	return 0, false
}

// Vector returns the (packet_size, packet_rate, byte_rate) triple used by the
// anomaly model.
func (f *FeatureRecord) Vector() []float64 {
	return []float64{float64(f.PacketSize), f.PacketRate, f.ByteRate}
}
