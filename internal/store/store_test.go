package store

import (
	"Go2NetGuard/internal/model"
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alert(id string, typ model.ThreatType, sev model.Severity) *model.Alert {
	name := "SYN_Flood"
	return &model.Alert{
		ID:          id,
		Timestamp:   "2024-03-09T13:30:00Z",
		AlertType:   typ,
		AttackName:  &name,
		Severity:    sev,
		Source:      model.Endpoint{IP: "203.0.113.9", Port: 31337},
		Destination: model.Endpoint{IP: "10.0.0.80", Port: 80},
		Traffic:     model.Traffic{PacketSize: 60, PacketRate: 200, ByteRate: 12000, TCPFlags: "S"},
	}
}

func openStore(t *testing.T, keep int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "alerts.db"), keep)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddListNewestFirst(t *testing.T) {
	s := openStore(t, 0)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, alert("a", model.ThreatSignature, model.SeverityHigh)))
	require.NoError(t, s.Add(ctx, alert("b", model.ThreatAnomaly, model.SeverityMedium)))
	require.NoError(t, s.Add(ctx, alert("c", model.ThreatSignature, model.SeverityLow)))
	require.NoError(t, s.Add(ctx, alert("a", model.ThreatSignature, model.SeverityHigh)))

	all, err := s.List(ctx, 10, model.SeverityLow)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "SYN_Flood", *all[2].AttackName)

	severe, err := s.List(ctx, 10, model.SeverityMedium)
	require.NoError(t, err)
	assert.Len(t, severe, 2)

	limited, err := s.List(ctx, 1, model.SeverityLow)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)
}

func TestRetentionKeepsNewest(t *testing.T) {
	s := openStore(t, 5)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		require.NoError(t, s.Add(ctx, alert(fmt.Sprintf("id-%d", i), model.ThreatSignature, model.SeverityHigh)))
	}
	all, err := s.List(ctx, 100, model.SeverityLow)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "id-11", all[0].ID)
	assert.Equal(t, "id-7", all[4].ID)
}

func TestSummaryAndClear(t *testing.T) {
	s := openStore(t, 0)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, alert("a", model.ThreatSignature, model.SeverityHigh)))
	require.NoError(t, s.Add(ctx, alert("b", model.ThreatSignature, model.SeverityHigh)))
	require.NoError(t, s.Add(ctx, alert("c", model.ThreatAnomaly, model.SeverityMedium)))

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, map[string]int{"low": 0, "medium": 1, "high": 2}, sum.BySeverity)
	assert.Equal(t, map[string]int{"signature": 2, "anomaly": 1}, sum.ByType)

	n, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	sum, err = s.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Total)
}
