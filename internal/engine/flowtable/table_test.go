package flowtable

import (
	"Go2NetGuard/internal/model"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(src string, sport uint16) model.FlowKey {
	return model.FlowKey{
		SrcIP:   netip.MustParseAddr(src),
		DstIP:   netip.MustParseAddr("10.1.0.1"),
		SrcPort: sport,
		DstPort: 80,
	}
}

func TestUpdateIsMonotonic(t *testing.T) {
	table := New()
	k := key("10.0.0.1", 5000)
	start := time.Unix(1000, 0)

	var prev model.FlowState
	for i := 0; i < 10; i++ {
		st := table.Update(k, 60+i, start.Add(time.Duration(i)*time.Second))
		assert.GreaterOrEqual(t, st.PacketCount, prev.PacketCount)
		assert.GreaterOrEqual(t, st.ByteCount, prev.ByteCount)
		assert.Equal(t, start, st.StartTime)
		prev = st
	}
	assert.Equal(t, uint64(10), prev.PacketCount)
	assert.Equal(t, start.Add(9*time.Second), prev.LastTime)
	assert.Equal(t, 1, table.Len())
}

func TestDirectionsAreSeparateFlows(t *testing.T) {
	table := New()
	fwd := key("10.0.0.1", 5000)
	rev := model.FlowKey{SrcIP: fwd.DstIP, DstIP: fwd.SrcIP, SrcPort: fwd.DstPort, DstPort: fwd.SrcPort}

	table.Update(fwd, 60, time.Unix(1, 0))
	table.Update(rev, 60, time.Unix(2, 0))

	assert.Equal(t, 2, table.Len())
	st, ok := table.Get(fwd)
	require.True(t, ok)
	assert.Equal(t, uint64(1), st.PacketCount)
}

func TestSweepEvictsIdleFlows(t *testing.T) {
	table := New()
	old := key("10.0.0.1", 5000)
	fresh := key("10.0.0.2", 5001)

	table.Update(old, 60, time.Unix(100, 0))
	table.Update(fresh, 60, time.Unix(200, 0))

	assert.Equal(t, 0, table.Sweep(0))
	assert.Equal(t, 1, table.Sweep(30*time.Second))
	assert.Equal(t, uint64(1), table.Evicted())

	_, ok := table.Get(old)
	assert.False(t, ok)

	st := table.Update(old, 60, time.Unix(201, 0))
	assert.Equal(t, uint64(1), st.PacketCount, "evicted flow restarts from scratch")
	assert.Equal(t, time.Unix(201, 0), st.StartTime)
}
