package alerter

import (
	"Go2NetGuard/internal/model"
	"time"

	"github.com/google/uuid"
)

// Builder turns a threat and the feature record that caused it into an
// alert.
type Builder struct {
	now   func() time.Time
	newID func() string
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithClock sets the time source used to stamp alerts.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithIDs sets the alert id generator.
func WithIDs(newID func() string) BuilderOption {
	return func(b *Builder) { b.newID = newID }
}

// NewBuilder creates a builder stamping alerts with the wall clock and
// random UUIDs.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns a new alert for threat t seen in f.
func (b *Builder) Build(t model.Threat, f *model.FeatureRecord) *model.Alert {
	duration := f.FlowDuration
	alert := &model.Alert{
		ID:        b.newID(),
		Timestamp: b.now().UTC().Format(time.RFC3339Nano),
		AlertType: t.Type,
		Severity:  t.Severity,
		Source: model.Endpoint{
			IP:   f.Key.SrcIP.String(),
			Port: int(f.Key.SrcPort),
		},
		Destination: model.Endpoint{
			IP:   f.Key.DstIP.String(),
			Port: int(f.Key.DstPort),
		},
		Traffic: model.Traffic{
			PacketSize:   f.PacketSize,
			PacketRate:   f.PacketRate,
			ByteRate:     f.ByteRate,
			TCPFlags:     f.TCPFlags,
			FlowDuration: &duration,
		},
	}

	switch t.Type {
	case model.ThreatSignature:
		name := t.RuleName
		alert.AttackName = &name
		if t.Technique != "" {
			technique := t.Technique
			alert.MitreTechnique = &technique
		}
	case model.ThreatAnomaly:
		score := t.Score
		alert.AnomalyScore = &score
	}
	return alert
}
