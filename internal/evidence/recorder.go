// Package evidence keeps the raw frames of alerting packets in a pcap file
// for later inspection.
package evidence

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/model"
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 65535

// Recorder appends frames to a pcap file from a single writer goroutine.
type Recorder struct {
	path       string
	packetChan chan *model.PacketInfo
	stopChan   chan struct{}
	wg         sync.WaitGroup
	stopOnce   sync.Once

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewRecorder creates cfg.Path if needed and opens a pcap file named after
// the current time.
func NewRecorder(cfg config.EvidenceConfig) (*Recorder, error) {
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}

	fileName := fmt.Sprintf("evidence_%s.pcap", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(cfg.Path, fileName)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create evidence file: %w", err)
	}
	buf := bufio.NewWriter(file)
	writer := pcapgo.NewWriter(buf)
	if err := writer.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}

	r := &Recorder{
		path:       filePath,
		packetChan: make(chan *model.PacketInfo, bufferSize),
		stopChan:   make(chan struct{}),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(writer)
		if err := buf.Flush(); err != nil {
			log.Printf("ERROR: evidence recorder failed to flush: %v", err)
		}
		if err := file.Close(); err != nil {
			log.Printf("ERROR: evidence recorder failed to close file: %v", err)
		}
	}()
	log.Printf("Evidence recorder writing to %s", filePath)
	return r, nil
}

// Path returns the pcap file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Record queues the raw frame of pkt. Packets without a frame, and packets
// that do not fit in the buffer, are dropped.
func (r *Recorder) Record(pkt *model.PacketInfo) {
	if len(pkt.Raw) == 0 {
		return
	}
	select {
	case <-r.stopChan:
		r.drop()
		return
	default:
	}
	select {
	case r.packetChan <- pkt:
	default:
		r.drop()
	}
}

func (r *Recorder) drop() {
	if n := r.dropped.Add(1); n%1000 == 1 {
		log.Printf("Warning: evidence recorder buffer full, dropped %d packets", n)
	}
	metrics.Get().EvidencePackets.WithLabelValues("dropped").Inc()
}

func (r *Recorder) run(w *pcapgo.Writer) {
	for {
		select {
		case pkt := <-r.packetChan:
			r.write(w, pkt)
		case <-r.stopChan:
			for {
				select {
				case pkt := <-r.packetChan:
					r.write(w, pkt)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(w *pcapgo.Writer, pkt *model.PacketInfo) {
	ci := gopacket.CaptureInfo{
		Timestamp:     pkt.Timestamp,
		CaptureLength: len(pkt.Raw),
		Length:        max(pkt.Length, len(pkt.Raw)),
	}
	if err := w.WritePacket(ci, pkt.Raw); err != nil {
		log.Printf("ERROR: evidence recorder failed to write packet: %v", err)
		metrics.Get().EvidencePackets.WithLabelValues("failed").Inc()
		return
	}
	r.written.Add(1)
	metrics.Get().EvidencePackets.WithLabelValues("written").Inc()
}

// Stop writes the queued frames and closes the file.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
		r.wg.Wait()
		log.Printf("Evidence recorder stopped (written=%d, dropped=%d)", r.written.Load(), r.dropped.Load())
	})
}

// Stats returns the written and dropped counts.
func (r *Recorder) Stats() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}
