package feature

import (
	"Go2NetGuard/internal/engine/flowtable"
	"Go2NetGuard/internal/engine/spread"
	"Go2NetGuard/internal/model"
	"time"
)

// MinFlowDuration is the floor applied to a flow's lifetime before rates are
// computed, so the first packet of a flow yields finite rates.
const MinFlowDuration = 100 * time.Microsecond

// Extractor turns packets into feature records, updating the flow table as
// it goes. It shares the single-writer constraint of its table.
type Extractor struct {
	table  *flowtable.Table
	spread *spread.Sketch
}

// NewExtractor creates an extractor backed by table.
func NewExtractor(table *flowtable.Table) *Extractor {
	return &Extractor{table: table}
}

// SetSpread enables the dst_spread feature, estimated by sketch.
func (e *Extractor) SetSpread(sketch *spread.Sketch) {
	e.spread = sketch
}

// Table returns the flow table the extractor writes to.
func (e *Extractor) Table() *flowtable.Table {
	return e.table
}

// Extract accounts pkt to its flow at time at and returns the resulting
// feature record.
func (e *Extractor) Extract(pkt *model.PacketInfo, at time.Time) model.FeatureRecord {
	key := pkt.Key()
	state := e.table.Update(key, pkt.Length, at)

	lifetime := state.LastTime.Sub(state.StartTime)
	if lifetime < 0 {
		lifetime = 0
	}
	seconds := max(lifetime, MinFlowDuration).Seconds()

	record := model.FeatureRecord{
		Key:          key,
		PacketSize:   pkt.Length,
		PacketRate:   float64(state.PacketCount) / seconds,
		ByteRate:     float64(state.ByteCount) / seconds,
		TCPFlags:     pkt.TCPFlags,
		FlowDuration: lifetime.Seconds(),
		PacketCount:  state.PacketCount,
		ByteCount:    state.ByteCount,
	}
	if e.spread != nil {
		record.DstSpread = e.spread.Observe(key.SrcIP, key.DstIP, key.DstPort, at)
	}
	return record
}
