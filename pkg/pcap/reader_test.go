package pcap

import (
	"Go2NetGuard/internal/model"
	"Go2NetGuard/pkg/pcapgen"
	"net"
	"path/filepath"
	"testing"
	"time"
)

var start = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

// writeCapture writes three TCP packets and one UDP datagram.
func writeCapture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pcap")
	w, err := pcapgen.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	src, dst := net.IPv4(192, 168, 1, 10), net.IPv4(10, 0, 0, 80)
	for i, flags := range []string{"S", "SA", "A"} {
		p := pcapgen.Packet{Timestamp: start.Add(time.Duration(i) * time.Second), SrcIP: src, DstIP: dst, SrcPort: 40000, DstPort: 80, Flags: flags}
		if err := w.Write(p); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	udp, err := pcapgen.UDPFrame(src, dst, 5353, 53)
	if err != nil {
		t.Fatalf("UDPFrame: %v", err)
	}
	if err := w.WriteFrame(start.Add(3*time.Second), udp); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestReader_ReadPackets(t *testing.T) {
	reader, err := NewReader(writeCapture(t))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	defer reader.Close()

	var got []*model.PacketInfo
	rejected, err := reader.ReadPackets(func(p *model.PacketInfo) bool {
		got = append(got, p)
		return true
	})
	if err != nil {
		t.Fatalf("ReadPackets: %v", err)
	}
	if len(got) != 3 || rejected != 1 {
		t.Fatalf("Expected 3 packets and 1 rejected, got %d and %d", len(got), rejected)
	}
	if got[1].TCPFlags != "SA" {
		t.Errorf("Expected flags SA, got %q", got[1].TCPFlags)
	}
	if !got[2].Timestamp.Equal(start.Add(2 * time.Second)) {
		t.Errorf("Expected capture timestamp to be kept, got %v", got[2].Timestamp)
	}
	if len(got[0].Raw) != got[0].Length {
		t.Errorf("Expected raw frame of %d bytes, got %d", got[0].Length, len(got[0].Raw))
	}
}

func TestReader_MissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "nope.pcap")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestFileSource_LossyCountsRefused(t *testing.T) {
	src := NewFileSource(writeCapture(t), false)
	stop := make(chan struct{})
	if err := src.Run(stop, func(*model.PacketInfo) bool { return false }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	offered, refused, rejected := src.Stats()
	if offered != 3 || refused != 3 || rejected != 1 {
		t.Errorf("Unexpected stats offered=%d refused=%d rejected=%d", offered, refused, rejected)
	}
}

func TestFileSource_LosslessRetries(t *testing.T) {
	src := NewFileSource(writeCapture(t), true)
	attempts := 0
	var accepted []string
	err := src.Run(make(chan struct{}), func(p *model.PacketInfo) bool {
		attempts++
		if attempts%2 == 1 {
			return false
		}
		accepted = append(accepted, p.TCPFlags)
		return true
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(accepted) != 3 || accepted[0] != "S" || accepted[2] != "A" {
		t.Errorf("Expected all packets in order, got %v", accepted)
	}
	if _, refused, _ := src.Stats(); refused != 0 {
		t.Errorf("Expected no refused packets, got %d", refused)
	}
}

func TestFileSource_StopsWhenStopped(t *testing.T) {
	src := NewFileSource(writeCapture(t), true)
	stop := make(chan struct{})
	close(stop)
	calls := 0
	if err := src.Run(stop, func(*model.PacketInfo) bool { calls++; return true }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no offers after stop, got %d", calls)
	}
}
