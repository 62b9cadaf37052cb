package feature

import (
	"Go2NetGuard/internal/engine/flowtable"
	"Go2NetGuard/internal/engine/spread"
	"Go2NetGuard/internal/model"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synPacket(ts time.Time) *model.PacketInfo {
	return &model.PacketInfo{
		Timestamp: ts,
		Length:    60,
		TCPFlags:  "S",
		FiveTuple: model.FiveTuple{
			SrcIP:    net.IPv4(10, 0, 0, 1),
			DstIP:    net.IPv4(10, 0, 0, 2),
			SrcPort:  1234,
			DstPort:  80,
			Protocol: 6,
		},
	}
}

func TestSinglePacketRatesAreFinite(t *testing.T) {
	e := NewExtractor(flowtable.New())
	ts := time.Unix(1700000000, 0)

	f := e.Extract(synPacket(ts), ts)

	require.False(t, math.IsInf(f.PacketRate, 0) || math.IsNaN(f.PacketRate))
	require.False(t, math.IsInf(f.ByteRate, 0) || math.IsNaN(f.ByteRate))
	assert.InDelta(t, 10000.0, f.PacketRate, 1e-6)
	assert.InDelta(t, 600000.0, f.ByteRate, 1e-3)
	assert.Equal(t, 0.0, f.FlowDuration)
	assert.Equal(t, "S", f.TCPFlags)
	assert.Equal(t, uint64(1), f.PacketCount)
}

func TestSameFlowRatesOverTime(t *testing.T) {
	e := NewExtractor(flowtable.New())
	start := time.Unix(1700000000, 0)

	var records []model.FeatureRecord
	for i := 0; i < 3; i++ {
		ts := start.Add(time.Duration(i) * 500 * time.Millisecond)
		records = append(records, e.Extract(synPacket(ts), ts))
	}

	assert.InDelta(t, 10000.0, records[0].PacketRate, 1e-6)
	assert.InDelta(t, 4.0, records[1].PacketRate, 1e-9)
	assert.InDelta(t, 3.0, records[2].PacketRate, 1e-9)
	assert.InDelta(t, 1.0, records[2].FlowDuration, 1e-9)

	for i := 1; i < len(records); i++ {
		assert.Greater(t, records[i].PacketCount, records[i-1].PacketCount)
		assert.Greater(t, records[i].ByteCount, records[i-1].ByteCount)
	}
	assert.Equal(t, 1, e.Table().Len())
}

func TestOutOfOrderTimestampStaysNonNegative(t *testing.T) {
	e := NewExtractor(flowtable.New())
	start := time.Unix(1700000000, 0)

	e.Extract(synPacket(start), start)
	earlier := start.Add(-time.Second)
	f := e.Extract(synPacket(earlier), earlier)

	assert.GreaterOrEqual(t, f.PacketRate, 0.0)
	assert.GreaterOrEqual(t, f.FlowDuration, 0.0)
	assert.False(t, math.IsInf(f.PacketRate, 0))
}

func TestDstSpreadCountsDistinctPorts(t *testing.T) {
	e := NewExtractor(flowtable.New())
	start := time.Unix(1700000000, 0)

	f := e.Extract(synPacket(start), start)
	assert.Zero(t, f.DstSpread)

	e.SetSpread(spread.New(0, 0, time.Minute, 1))
	for i := 0; i < 400; i++ {
		p := synPacket(start.Add(time.Duration(i) * time.Millisecond))
		p.FiveTuple.DstPort = uint16(1000 + i)
		f = e.Extract(p, p.Timestamp)
	}
	assert.Greater(t, f.DstSpread, uint32(200))
	v, ok := f.Value(model.FeatureDstSpread)
	require.True(t, ok)
	assert.Equal(t, float64(f.DstSpread), v)
	assert.Equal(t, 401, e.Table().Len())
}
