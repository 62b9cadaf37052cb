package pcap

import (
	"Go2NetGuard/internal/engine/protocol"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/model"
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/pcapgo"
)

// Reader reads packets from a pcap or pcapng file.
type Reader struct {
	file *os.File
	next func() ([]byte, time.Time, error)
}

// NewReader opens filePath and detects its format.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(file)
	magic, err := br.Peek(4)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}

	r := &Reader{file: file}
	if magic[0] == 0x0a && magic[1] == 0x0d && magic[2] == 0x0d && magic[3] == 0x0a {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to open pcapng file: %w", err)
		}
		r.next = func() ([]byte, time.Time, error) {
			data, ci, err := ng.ReadPacketData()
			return data, ci.Timestamp, err
		}
		return r, nil
	}

	pr, err := pcapgo.NewReader(br)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open pcap file: %w", err)
	}
	r.next = func() ([]byte, time.Time, error) {
		data, ci, err := pr.ReadPacketData()
		return data, ci.Timestamp, err
	}
	return r, nil
}

// Close closes the underlying file.
func (r *Reader) Close() {
	r.file.Close()
}

// ReadPackets parses every frame in file order and calls fn for each IPv4/TCP
// packet. It stops early, returning nil, when fn returns false. It returns
// the number of frames that were not IPv4/TCP.
func (r *Reader) ReadPackets(fn func(*model.PacketInfo) bool) (rejected int, err error) {
	m := metrics.Get()
	for {
		data, ts, err := r.next()
		if errors.Is(err, io.EOF) {
			return rejected, nil
		}
		if err != nil {
			return rejected, fmt.Errorf("failed to read packet: %w", err)
		}
		info, err := protocol.ParseFrame(data, ts)
		if err != nil {
			rejected++
			m.PacketsCaptured.WithLabelValues("rejected").Inc()
			continue
		}
		m.PacketsCaptured.WithLabelValues("parsed").Inc()
		if !fn(info) {
			return rejected, nil
		}
	}
}

// ReadFile is a convenience wrapper that reads all IPv4/TCP packets of path.
func ReadFile(path string, fn func(*model.PacketInfo)) error {
	r, err := NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = r.ReadPackets(func(p *model.PacketInfo) bool {
		fn(p)
		return true
	})
	return err
}

// FileSource replays a capture file into the pipeline. In lossless mode a
// packet refused by the queue is retried until accepted or stopped.
type FileSource struct {
	Path     string
	Lossless bool
	Retry    time.Duration

	offered  atomic.Uint64
	refused  atomic.Uint64
	rejected atomic.Uint64
}

// NewFileSource creates a replay source for path.
func NewFileSource(path string, lossless bool) *FileSource {
	return &FileSource{Path: path, Lossless: lossless, Retry: time.Millisecond}
}

// Run implements model.PacketSource.
func (s *FileSource) Run(stop <-chan struct{}, offer func(*model.PacketInfo) bool) error {
	r, err := NewReader(s.Path)
	if err != nil {
		return err
	}
	defer r.Close()
	log.Printf("Replaying packets from %s (lossless=%t)", s.Path, s.Lossless)

	stopped := false
	rejected, err := r.ReadPackets(func(p *model.PacketInfo) bool {
		select {
		case <-stop:
			stopped = true
			return false
		default:
		}
		s.offered.Add(1)
		if offer(p) {
			return true
		}
		if !s.Lossless {
			s.refused.Add(1)
			return true
		}
		for {
			select {
			case <-stop:
				s.refused.Add(1)
				stopped = true
				return false
			case <-time.After(s.Retry):
			}
			if offer(p) {
				return true
			}
		}
	})
	s.rejected.Add(uint64(rejected))
	if err != nil {
		return err
	}
	if !stopped {
		log.Printf("Finished replaying %s: offered=%d refused=%d non-tcp=%d",
			s.Path, s.offered.Load(), s.refused.Load(), s.rejected.Load())
	}
	return nil
}

// Stats returns the packets offered, refused by the queue, and rejected by
// the parser.
func (s *FileSource) Stats() (offered, refused, rejected uint64) {
	return s.offered.Load(), s.refused.Load(), s.rejected.Load()
}
