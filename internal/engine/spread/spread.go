// Package spread estimates how many distinct destinations each source
// contacts, the fan-out signature of a scan.
//
// The sketch is SuperSpread: depth rows of width buckets. Each bucket keeps a
// candidate source with a counter and an HLL sampler over (source,
// destination) pairs. A pair that raises a sampler register is counted with
// weight 1/p, where p is the probability that a new pair would have raised
// one. Competing sources decay the counter of the resident one.
package spread

import (
	"cmp"
	"encoding/binary"
	"math"
	"math/bits"
	"math/rand/v2"
	"net/netip"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultWidth = 1024
	defaultDepth = 2
	hllM         = 64
	hllMaxValue  = 31
	hllBase      = 0.5
	decayBase    = 1.08
)

// hll is a single-bucket HyperLogLog sampler tracking the probability that
// an unseen element changes it.
type hll struct {
	regs [hllM]uint8
	p    float64
}

func (h *hll) reset() {
	h.regs = [hllM]uint8{}
	h.p = 1
}

// encode records an element hashed to (geo, idx) and returns the sampling
// probability in effect before it, or -1 when the sampler did not change.
func (h *hll) encode(geo uint8, idx uint32) float64 {
	old := h.regs[idx]
	if geo <= old {
		return -1
	}
	p := h.p
	h.p -= math.Pow(hllBase, float64(old)) / hllM
	if geo < hllMaxValue {
		h.p += math.Pow(hllBase, float64(geo)) / hllM
	}
	h.regs[idx] = geo
	return p
}

type bucket struct {
	key   netip.Addr
	value uint32
	hll   hll
}

// Sketch is a SuperSpread sketch over a sliding window of packet time. It is
// not safe for concurrent use.
type Sketch struct {
	width  uint32
	window time.Duration
	rows   [][]bucket
	seeds  []uint64
	rng    *rand.Rand

	windowStart time.Time
}

// New creates a sketch. Zero width or depth select the defaults. A zero
// window never resets.
func New(width, depth int, window time.Duration, seed uint64) *Sketch {
	if width <= 0 {
		width = defaultWidth
	}
	if depth <= 0 {
		depth = defaultDepth
	}
	s := &Sketch{
		width:  uint32(width),
		window: window,
		rows:   make([][]bucket, depth),
		seeds:  make([]uint64, depth+2),
		rng:    rand.New(rand.NewPCG(seed, seed^0x5bd1e995)),
	}
	for i := range s.seeds {
		s.seeds[i] = s.rng.Uint64()
	}
	for i := range s.rows {
		s.rows[i] = make([]bucket, width)
	}
	s.Reset()
	return s
}

// Reset clears every bucket.
func (s *Sketch) Reset() {
	for i := range s.rows {
		for j := range s.rows[i] {
			b := &s.rows[i][j]
			b.key = netip.Addr{}
			b.value = 0
			b.hll.reset()
		}
	}
}

func hash(seed uint64, data []byte) uint64 {
	d := xxhash.NewWithSeed(seed)
	d.Write(data)
	return d.Sum64()
}

func pair(src, dst netip.Addr, dport uint16) []byte {
	buf := make([]byte, 0, 34)
	s16, d16 := src.As16(), dst.As16()
	buf = append(buf, s16[:]...)
	buf = append(buf, d16[:]...)
	return binary.BigEndian.AppendUint16(buf, dport)
}

// Observe records that src sent a packet to dst:dport at packet time at and
// returns the current spread estimate of src.
func (s *Sketch) Observe(src, dst netip.Addr, dport uint16, at time.Time) uint32 {
	if s.window > 0 {
		if s.windowStart.IsZero() || at.Sub(s.windowStart) >= s.window {
			if !s.windowStart.IsZero() {
				s.Reset()
			}
			s.windowStart = at
		}
	}
	s.insert(src, pair(src, dst, dport))
	return s.Estimate(src)
}

func (s *Sketch) insert(src netip.Addr, elem []byte) {
	key := src.As16()
	h := hash(s.seeds[0], elem)
	geo := uint8(min(bits.LeadingZeros64(h)+1, hllMaxValue))
	idx := uint32(hash(s.seeds[1], elem) % hllM)

	for i, row := range s.rows {
		b := &row[hash(s.seeds[i+2], key[:])%uint64(s.width)]
		p := b.hll.encode(geo, idx)
		if p <= 0 {
			continue
		}
		// Round 1/p to a whole number of increments without bias.
		n := math.Ceil(1 / p)
		if s.rng.Float64() >= (1/p)/n {
			continue
		}
		for k := 0; k < int(n); k++ {
			switch {
			case b.value == 0:
				b.key = src
				b.value = 1
			case b.key == src:
				b.value++
			case s.rng.Float64() < math.Pow(decayBase, -float64(b.value)):
				b.value--
			}
		}
	}
}

// Estimate returns the spread of src. Sources that lost every bucket report 1.
func (s *Sketch) Estimate(src netip.Addr) uint32 {
	key := src.As16()
	var est uint32
	for i, row := range s.rows {
		b := &row[hash(s.seeds[i+2], key[:])%uint64(s.width)]
		if b.key == src && b.value > est {
			est = b.value
		}
	}
	return max(est, 1)
}

// Record is one source whose estimate reached a threshold.
type Record struct {
	Src    netip.Addr
	Spread uint32
}

// Top returns the sources with an estimate of at least threshold, largest
// first.
func (s *Sketch) Top(threshold uint32) []Record {
	seen := make(map[netip.Addr]bool)
	var out []Record
	for _, row := range s.rows {
		for _, b := range row {
			if b.value == 0 || seen[b.key] {
				continue
			}
			seen[b.key] = true
			if est := s.Estimate(b.key); est >= threshold {
				out = append(out, Record{Src: b.key, Spread: est})
			}
		}
	}
	slices.SortFunc(out, func(a, b Record) int { return cmp.Compare(b.Spread, a.Spread) })
	return out
}
