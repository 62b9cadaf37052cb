package model

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrderingAndText(t *testing.T) {
	assert.True(t, SeverityLow < SeverityMedium)
	assert.True(t, SeverityMedium < SeverityHigh)

	for _, name := range []string{"low", "medium", "high"} {
		s, err := ParseSeverity(name)
		require.NoError(t, err)
		assert.Equal(t, name, s.String())
	}

	s, err := ParseSeverity(" HIGH ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, s)

	_, err = ParseSeverity("critical")
	assert.Error(t, err)
}

func TestSeverityJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		S Severity `json:"s"`
	}{SeverityMedium})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"medium"}`, string(out))

	var in struct {
		S Severity `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"low"}`), &in))
	assert.Equal(t, SeverityLow, in.S)

	_, err = json.Marshal(Severity(0))
	assert.Error(t, err)
}

func TestFeatureValueLookup(t *testing.T) {
	p := &PacketInfo{FiveTuple: FiveTuple{
		SrcIP: net.ParseIP("10.0.0.1"), DstIP: net.ParseIP("10.0.0.2"), SrcPort: 4000, DstPort: 80,
	}}
	f := FeatureRecord{Key: p.Key(), PacketSize: 60, PacketRate: 2.5, ByteRate: 150, PacketCount: 3, ByteCount: 180}

	v, ok := f.Value(FeaturePacketRate)
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)

	v, ok = f.Value(FeatureDstPort)
	assert.True(t, ok)
	assert.Equal(t, 80.0, v)

	_, ok = f.Value("entropy")
	assert.False(t, ok)

	assert.Equal(t, []float64{60, 2.5, 150}, f.Vector())
	assert.Equal(t, "10.0.0.1:4000->10.0.0.2:80", f.Key.String())
}
