// Package pcapgen synthesizes Ethernet/IPv4/TCP frames and pcap files for
// replay and tests.
package pcapgen

import (
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Packet describes a TCP segment to synthesize.
type Packet struct {
	Timestamp time.Time
	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   uint16
	DstPort   uint16
	// Flags uses the symbolic form, e.g. "S", "SA", "PA", "FA".
	Flags   string
	Payload int
}

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// Frame serializes p into an Ethernet frame.
func Frame(p Packet) ([]byte, error) {
	ethLayer := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipLayer := &layers.IPv4{
		SrcIP:    p.SrcIP.To4(),
		DstIP:    p.DstIP.To4(),
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
	}
	tcpLayer := &layers.TCP{
		SrcPort: layers.TCPPort(p.SrcPort),
		DstPort: layers.TCPPort(p.DstPort),
		Seq:     1000,
		Window:  14600,
	}
	for _, c := range p.Flags {
		switch c {
		case 'F':
			tcpLayer.FIN = true
		case 'S':
			tcpLayer.SYN = true
		case 'R':
			tcpLayer.RST = true
		case 'P':
			tcpLayer.PSH = true
		case 'A':
			tcpLayer.ACK = true
		case 'U':
			tcpLayer.URG = true
		case 'E':
			tcpLayer.ECE = true
		case 'C':
			tcpLayer.CWR = true
		case 'N':
			tcpLayer.NS = true
		default:
			return nil, fmt.Errorf("unknown TCP flag %q", c)
		}
	}
	if err := tcpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, tcpLayer, gopacket.Payload(make([]byte, p.Payload))); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}

// UDPFrame serializes a UDP datagram, which the IDS parser rejects.
func UDPFrame(src, dst net.IP, sport, dport uint16) ([]byte, error) {
	ethLayer := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ipLayer := &layers.IPv4{SrcIP: src.To4(), DstIP: dst.To4(), Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP}
	udpLayer := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	if err := udpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
		return nil, err
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, udpLayer, gopacket.Payload([]byte("dns?"))); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}

// Writer appends frames to a pcap file.
type Writer struct {
	file *os.File
	w    *pcapgo.Writer
}

// Create creates a pcap file with an Ethernet link type header.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap file: %w", err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{file: f, w: w}, nil
}

// WriteFrame writes an already serialized frame.
func (w *Writer) WriteFrame(ts time.Time, frame []byte) error {
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(frame), Length: len(frame)}
	return w.w.WritePacket(ci, frame)
}

// Write serializes and writes p.
func (w *Writer) Write(p Packet) error {
	frame, err := Frame(p)
	if err != nil {
		return err
	}
	return w.WriteFrame(p.Timestamp, frame)
}

func (w *Writer) Close() error {
	return w.file.Close()
}

// WriteFile writes all packets to a new pcap file at path.
func WriteFile(path string, packets []Packet) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	for _, p := range packets {
		if err := w.Write(p); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// SynFlood returns n SYN packets of one flow spread evenly over span.
func SynFlood(start time.Time, n int, span time.Duration, src, dst net.IP, sport, dport uint16) []Packet {
	packets := make([]Packet, n)
	step := time.Duration(0)
	if n > 1 {
		step = span / time.Duration(n)
	}
	for i := range packets {
		packets[i] = Packet{
			Timestamp: start.Add(time.Duration(i) * step),
			SrcIP:     src,
			DstIP:     dst,
			SrcPort:   sport,
			DstPort:   dport,
			Flags:     "S",
		}
	}
	return packets
}

// Normal returns n packets spread over many short, slow flows between
// private hosts. The output is deterministic for a given seed.
func Normal(start time.Time, n int, seed uint64) []Packet {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	packets := make([]Packet, 0, n)
	ts := start
	flags := []string{"S", "SA", "A", "PA", "PA", "FA"}
	for len(packets) < n {
		src := net.IPv4(10, 0, byte(rng.IntN(4)), byte(1+rng.IntN(200)))
		dst := net.IPv4(10, 1, 0, byte(1+rng.IntN(20)))
		sport := uint16(1024 + rng.IntN(60000))
		dport := []uint16{80, 443, 22, 8080}[rng.IntN(4)]
		for i := 0; i < len(flags) && len(packets) < n; i++ {
			ts = ts.Add(time.Duration(200+rng.IntN(600)) * time.Millisecond)
			packets = append(packets, Packet{
				Timestamp: ts,
				SrcIP:     src,
				DstIP:     dst,
				SrcPort:   sport,
				DstPort:   dport,
				Flags:     flags[i],
				Payload:   rng.IntN(400),
			})
		}
	}
	return packets
}
