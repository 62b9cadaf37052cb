// Package sniffer captures live traffic from a network interface.
package sniffer

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/engine/protocol"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/model"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/gopacket/pcap"
)

// readTimeout bounds how long a read blocks, so stop is noticed promptly.
const readTimeout = 500 * time.Millisecond

// Sniffer reads IPv4/TCP packets from an interface.
type Sniffer struct {
	iface       string
	filter      string
	snapshotLen int32
	promiscuous bool
}

// New creates a sniffer for the capture section of the configuration.
func New(cfg config.CaptureConfig) (*Sniffer, error) {
	if cfg.Interface == "" {
		return nil, fmt.Errorf("capture interface is required")
	}
	return &Sniffer{
		iface:       cfg.Interface,
		filter:      cfg.BPFFilter,
		snapshotLen: cfg.SnapshotLen,
		promiscuous: cfg.Promiscuous,
	}, nil
}

// Capture opens the interface and calls fn for each parsed packet until stop
// is closed or the capture fails.
func (s *Sniffer) Capture(stop <-chan struct{}, fn func(*model.PacketInfo)) error {
	handle, err := pcap.OpenLive(s.iface, s.snapshotLen, s.promiscuous, readTimeout)
	if err != nil {
		return fmt.Errorf("error opening device %s: %w", s.iface, err)
	}
	defer handle.Close()

	if s.filter != "" {
		if err := handle.SetBPFFilter(s.filter); err != nil {
			return fmt.Errorf("invalid BPF filter %q: %w", s.filter, err)
		}
	}
	log.Printf("Capture started on %s (filter %q)", s.iface, s.filter)

	m := metrics.Get()
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		data, ci, err := handle.ReadPacketData()
		switch {
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case errors.Is(err, io.EOF), errors.Is(err, pcap.NextErrorNoMorePackets):
			return nil
		case err != nil:
			return fmt.Errorf("capture on %s failed: %w", s.iface, err)
		}

		info, err := protocol.ParseFrame(data, ci.Timestamp)
		if err != nil {
			m.PacketsCaptured.WithLabelValues("rejected").Inc()
			continue
		}
		m.PacketsCaptured.WithLabelValues("parsed").Inc()
		fn(info)
	}
}

// Run implements model.PacketSource.
func (s *Sniffer) Run(stop <-chan struct{}, offer func(*model.PacketInfo) bool) error {
	return s.Capture(stop, func(p *model.PacketInfo) { offer(p) })
}
