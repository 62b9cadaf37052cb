package alerter

import (
	"Go2NetGuard/internal/model"
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 9, 14, 30, 0, 123000000, time.FixedZone("CET", 3600))

func record() *model.FeatureRecord {
	return &model.FeatureRecord{
		Key: model.FlowKey{
			SrcIP:   netip.MustParseAddr("203.0.113.9"),
			DstIP:   netip.MustParseAddr("10.0.0.80"),
			SrcPort: 31337,
			DstPort: 80,
		},
		PacketSize:   60,
		PacketRate:   201.5,
		ByteRate:     12090,
		TCPFlags:     "S",
		FlowDuration: 0.995,
		PacketCount:  200,
		ByteCount:    12000,
	}
}

func newTestBuilder() *Builder {
	return NewBuilder(WithClock(func() time.Time { return fixedNow }), WithIDs(func() string { return "alert-1" }))
}

func TestBuildSignatureAlert(t *testing.T) {
	threat := model.Threat{
		Type: model.ThreatSignature, RuleName: "syn_flood", Technique: "T1499", Severity: model.SeverityHigh,
	}
	alert := newTestBuilder().Build(threat, record())

	out, err := json.Marshal(alert)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "alert-1",
		"timestamp": "2024-03-09T13:30:00.123Z",
		"alert_type": "signature",
		"attack_name": "syn_flood",
		"severity": "high",
		"mitre_technique": "T1499",
		"anomaly_score": null,
		"source": {"ip": "203.0.113.9", "port": 31337},
		"destination": {"ip": "10.0.0.80", "port": 80},
		"traffic": {"packet_size": 60, "packet_rate": 201.5, "byte_rate": 12090, "tcp_flags": "S", "flow_duration": 0.995}
	}`, string(out))
}

func TestBuildAnomalyAlert(t *testing.T) {
	threat := model.Threat{Type: model.ThreatAnomaly, Score: -0.71, Severity: model.SeverityMedium}
	alert := newTestBuilder().Build(threat, record())

	assert.Equal(t, model.ThreatAnomaly, alert.AlertType)
	assert.Nil(t, alert.AttackName)
	assert.Nil(t, alert.MitreTechnique)
	require.NotNil(t, alert.AnomalyScore)
	assert.Equal(t, -0.71, *alert.AnomalyScore)
	assert.Equal(t, model.SeverityMedium, alert.Severity)
}

func TestBuilderDefaultIDsAreUnique(t *testing.T) {
	b := NewBuilder()
	threat := model.Threat{Type: model.ThreatAnomaly, Score: -0.8, Severity: model.SeverityMedium}
	a1 := b.Build(threat, record())
	a2 := b.Build(threat, record())
	assert.NotEqual(t, a1.ID, a2.ID)
	_, err := time.Parse(time.RFC3339Nano, a1.Timestamp)
	assert.NoError(t, err)
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []*model.Alert
	closed bool
}

func (s *recordingSink) Deliver(a *model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func TestDispatcherRoutesBySeverity(t *testing.T) {
	all := &recordingSink{}
	highOnly := &recordingSink{}
	d := NewDispatcher()
	d.Add("all", all, model.SeverityLow)
	d.Add("high", highOnly, model.SeverityHigh)
	assert.Equal(t, 2, d.Len())

	for _, sev := range []model.Severity{model.SeverityLow, model.SeverityMedium, model.SeverityHigh} {
		d.Deliver(&model.Alert{Severity: sev})
	}
	assert.Equal(t, 3, all.count())
	assert.Equal(t, 1, highOnly.count())

	d.Close()
	assert.True(t, all.closed)
	assert.Equal(t, 0, d.Len())
}

type fakePublisher struct {
	mu     sync.Mutex
	got    []string
	fail   bool
	block  chan struct{}
	closed bool
}

func (p *fakePublisher) Publish(ctx context.Context, a *model.Alert) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("remote down")
	}
	p.got = append(p.got, a.ID)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func TestAsyncSinkFlushesOnClose(t *testing.T) {
	p := &fakePublisher{}
	s := NewAsyncSink("test", p, 10, time.Second)
	for _, id := range []string{"a", "b", "c"} {
		s.Deliver(&model.Alert{ID: id, Severity: model.SeverityLow})
	}
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"a", "b", "c"}, p.got)
	assert.True(t, p.closed)
	sent, failed, dropped := s.Stats()
	assert.Equal(t, uint64(3), sent)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)
}

func TestAsyncSinkDropsWhenFull(t *testing.T) {
	p := &fakePublisher{block: make(chan struct{})}
	s := NewAsyncSink("slow", p, 1, time.Second)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Deliver(&model.Alert{ID: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a slow publisher")
	}

	close(p.block)
	require.NoError(t, s.Close())
	_, _, dropped := s.Stats()
	assert.GreaterOrEqual(t, dropped, uint64(8))
}

func TestAsyncSinkCountsFailures(t *testing.T) {
	p := &fakePublisher{fail: true}
	s := NewAsyncSink("failing", p, 4, time.Second)
	s.Deliver(&model.Alert{ID: "a"})
	require.NoError(t, s.Close())
	_, failed, _ := s.Stats()
	assert.Equal(t, uint64(1), failed)
}

type fakeNotifier struct {
	subjects []string
	bodies   []string
}

func (n *fakeNotifier) Send(subject, body string) error {
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return nil
}

type fakeAnalyzer struct{ input string }

func (a *fakeAnalyzer) AnalyzeTraffic(ctx context.Context, input string) (string, error) {
	a.input = input
	return "**Likely SYN flood** against port 80.", nil
}

func TestDigestSendsSummaryWithAnalysis(t *testing.T) {
	n := &fakeNotifier{}
	ai := &fakeAnalyzer{}
	d, err := NewDigest(n, ai, time.Hour, 2, time.Second)
	require.NoError(t, err)

	b := newTestBuilder()
	sig := b.Build(model.Threat{Type: model.ThreatSignature, RuleName: "syn_flood", Technique: "T1499", Severity: model.SeverityHigh}, record())
	anom := b.Build(model.Threat{Type: model.ThreatAnomaly, Score: -0.7, Severity: model.SeverityMedium}, record())
	d.Deliver(sig)
	d.Deliver(anom)
	d.Deliver(sig)

	require.NoError(t, d.Close())
	require.Len(t, n.subjects, 1)
	assert.Equal(t, "Go2NetGuard Alert Summary (3 alerts)", n.subjects[0])
	assert.Contains(t, n.bodies[0], "<table>")
	assert.Contains(t, n.bodies[0], "syn_flood")
	assert.Contains(t, n.bodies[0], "<strong>Likely SYN flood</strong>")
	assert.True(t, strings.Contains(ai.input, "1 more alerts were omitted"))
}

func TestDigestSkipsEmptyFlush(t *testing.T) {
	n := &fakeNotifier{}
	d, err := NewDigest(n, nil, time.Hour, 10, 0)
	require.NoError(t, err)
	require.NoError(t, d.Close())
	assert.Empty(t, n.subjects)

	_, err = NewDigest(nil, nil, time.Hour, 10, 0)
	assert.Error(t, err)
}
