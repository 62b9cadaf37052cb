package protocol

import (
	"Go2NetGuard/pkg/pcapgen"
	"errors"
	"net"
	"testing"
	"time"
)

func TestParseFrame(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	frame, err := pcapgen.Frame(pcapgen.Packet{
		SrcIP: net.IPv4(192, 168, 1, 10), DstIP: net.IPv4(192, 168, 1, 20),
		SrcPort: 40000, DstPort: 443, Flags: "SA", Payload: 10,
	})
	if err != nil {
		t.Fatalf("Failed to build frame: %v", err)
	}

	info, err := ParseFrame(frame, ts)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if !info.FiveTuple.SrcIP.Equal(net.IPv4(192, 168, 1, 10)) {
		t.Errorf("Unexpected source IP %s", info.FiveTuple.SrcIP)
	}
	if info.FiveTuple.DstPort != 443 || info.FiveTuple.SrcPort != 40000 {
		t.Errorf("Unexpected ports %d -> %d", info.FiveTuple.SrcPort, info.FiveTuple.DstPort)
	}
	if info.FiveTuple.Protocol != 6 {
		t.Errorf("Expected protocol 6, got %d", info.FiveTuple.Protocol)
	}
	if info.TCPFlags != "SA" {
		t.Errorf("Expected flags SA, got %q", info.TCPFlags)
	}
	if info.Length != len(frame) {
		t.Errorf("Expected length %d, got %d", len(frame), info.Length)
	}
	if !info.Timestamp.Equal(ts) {
		t.Errorf("Expected timestamp %s, got %s", ts, info.Timestamp)
	}
}

func TestParseFrameRejectsNonTCP(t *testing.T) {
	frame, err := pcapgen.UDPFrame(net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 53), 5353, 53)
	if err != nil {
		t.Fatalf("Failed to build frame: %v", err)
	}
	if _, err := ParseFrame(frame, time.Now()); !errors.Is(err, ErrNotTCP) {
		t.Errorf("Expected ErrNotTCP, got %v", err)
	}

	if _, err := ParseFrame([]byte{0xde, 0xad, 0xbe, 0xef}, time.Now()); !errors.Is(err, ErrNotIPv4) {
		t.Errorf("Expected ErrNotIPv4 for garbage, got %v", err)
	}
}

func TestTCPFlagsOrder(t *testing.T) {
	cases := map[string]string{"S": "S", "AS": "SA", "AF": "FA", "AP": "PA", "RA": "RA"}
	for in, want := range cases {
		frame, err := pcapgen.Frame(pcapgen.Packet{
			SrcIP: net.IPv4(1, 1, 1, 1), DstIP: net.IPv4(2, 2, 2, 2), SrcPort: 1, DstPort: 2, Flags: in,
		})
		if err != nil {
			t.Fatalf("Failed to build frame for %q: %v", in, err)
		}
		info, err := ParseFrame(frame, time.Now())
		if err != nil {
			t.Fatalf("ParseFrame failed for %q: %v", in, err)
		}
		if info.TCPFlags != want {
			t.Errorf("Flags %q rendered as %q, want %q", in, info.TCPFlags, want)
		}
	}
}
