package protocol

import (
	"Go2NetGuard/internal/model"
	"errors"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	ErrNotIPv4 = errors.New("not an IPv4 packet")
	ErrNotTCP  = errors.New("not a TCP packet")
)

// ParseFrame decodes a raw Ethernet frame captured at ts.
func ParseFrame(data []byte, ts time.Time) (*model.PacketInfo, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	info, err := ParsePacket(packet)
	if err != nil {
		return nil, err
	}
	info.Timestamp = ts
	return info, nil
}

// ParsePacket extracts the IPv4/TCP metadata of a decoded packet. Anything
// else is rejected with ErrNotIPv4 or ErrNotTCP.
func ParsePacket(packet gopacket.Packet) (*model.PacketInfo, error) {
	ipLayer, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return nil, ErrNotIPv4
	}
	tcpLayer, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok {
		return nil, ErrNotTCP
	}

	data := packet.Data()
	info := &model.PacketInfo{
		Timestamp: time.Now(),
		Length:    len(data),
		TCPFlags:  TCPFlags(tcpLayer),
		Raw:       data,
		FiveTuple: model.FiveTuple{
			SrcIP:    ipLayer.SrcIP,
			DstIP:    ipLayer.DstIP,
			SrcPort:  uint16(tcpLayer.SrcPort),
			DstPort:  uint16(tcpLayer.DstPort),
			Protocol: uint8(ipLayer.Protocol),
		},
	}
	if meta := packet.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		info.Timestamp = meta.Timestamp
	}
	return info, nil
}

// TCPFlags renders the set flags in FSRPAUECN order, so a SYN-ACK is "SA".
func TCPFlags(tcp *layers.TCP) string {
	var b strings.Builder
	set := []struct {
		on bool
		c  byte
	}{
		{tcp.FIN, 'F'},
		{tcp.SYN, 'S'},
		{tcp.RST, 'R'},
		{tcp.PSH, 'P'},
		{tcp.ACK, 'A'},
		{tcp.URG, 'U'},
		{tcp.ECE, 'E'},
		{tcp.CWR, 'C'},
		{tcp.NS, 'N'},
	}
	for _, f := range set {
		if f.on {
			b.WriteByte(f.c)
		}
	}
	return b.String()
}
