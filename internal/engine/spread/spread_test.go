package spread

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	scanner = netip.MustParseAddr("203.0.113.9")
	client  = netip.MustParseAddr("10.0.0.7")
	target  = netip.MustParseAddr("10.1.0.80")
	start   = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
)

func TestRepeatedDestinationCountsOnce(t *testing.T) {
	s := New(0, 0, time.Minute, 1)
	var est uint32
	for i := 0; i < 500; i++ {
		est = s.Observe(client, target, 443, start.Add(time.Duration(i)*time.Millisecond))
	}
	assert.Equal(t, uint32(1), est)
}

func TestScanEstimateTracksDistinctPorts(t *testing.T) {
	s := New(0, 0, time.Minute, 1)
	for i := 0; i < 2000; i++ {
		s.Observe(scanner, target, uint16(1+i), start.Add(time.Duration(i)*time.Millisecond))
		s.Observe(client, target, 443, start.Add(time.Duration(i)*time.Millisecond))
	}

	est := s.Estimate(scanner)
	assert.Greater(t, est, uint32(1000))
	assert.Less(t, est, uint32(4000))
	assert.Equal(t, uint32(1), s.Estimate(client))

	top := s.Top(100)
	require.Len(t, top, 1)
	assert.Equal(t, scanner, top[0].Src)
}

func TestWindowResetsEstimates(t *testing.T) {
	s := New(0, 0, time.Second, 1)
	for i := 0; i < 300; i++ {
		s.Observe(scanner, target, uint16(1+i), start.Add(time.Duration(i)*time.Millisecond))
	}
	require.Greater(t, s.Estimate(scanner), uint32(100))

	est := s.Observe(scanner, target, 1, start.Add(2*time.Second))
	assert.Equal(t, uint32(1), est)
}

func TestSeedMakesSketchDeterministic(t *testing.T) {
	a, b := New(64, 2, 0, 7), New(64, 2, 0, 7)
	for i := 0; i < 1000; i++ {
		src := netip.AddrFrom4([4]byte{10, 0, byte(i % 8), 1})
		a.Observe(src, target, uint16(i), start)
		b.Observe(src, target, uint16(i), start)
	}
	assert.Equal(t, a.Top(1), b.Top(1))
}
