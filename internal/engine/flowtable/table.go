// Package flowtable keeps per-connection aggregate state. A Table is owned by
// a single goroutine and is not safe for concurrent use.
package flowtable

import (
	"Go2NetGuard/internal/model"
	"time"
)

// Table maps flow keys to their running state.
type Table struct {
	flows   map[model.FlowKey]*model.FlowState
	latest  time.Time
	evicted uint64
}

// New creates an empty flow table.
func New() *Table {
	return &Table{flows: make(map[model.FlowKey]*model.FlowState)}
}

// Update records a packet of size bytes seen at ts and returns the flow state
// after the update. The flow is created on its first packet.
func (t *Table) Update(key model.FlowKey, size int, ts time.Time) model.FlowState {
	state, ok := t.flows[key]
	if !ok {
		state = &model.FlowState{StartTime: ts}
		t.flows[key] = state
	}
	state.PacketCount++
	if size > 0 {
		state.ByteCount += uint64(size)
	}
	state.LastTime = ts
	if ts.After(t.latest) {
		t.latest = ts
	}
	return *state
}

// Get returns a copy of the state of key.
func (t *Table) Get(key model.FlowKey) (model.FlowState, bool) {
	state, ok := t.flows[key]
	if !ok {
		return model.FlowState{}, false
	}
	return *state, true
}

// Len returns the number of tracked flows.
func (t *Table) Len() int {
	return len(t.flows)
}

// Evicted returns the number of flows removed by Sweep so far.
func (t *Table) Evicted() uint64 {
	return t.evicted
}

// Sweep removes flows that saw no packet within idle of the newest packet
// time observed by the table. Ages are measured in packet time, not wall
// clock time.
func (t *Table) Sweep(idle time.Duration) int {
	if idle <= 0 || t.latest.IsZero() {
		return 0
	}
	cutoff := t.latest.Add(-idle)
	removed := 0
	for key, state := range t.flows {
		if state.LastTime.Before(cutoff) {
			delete(t.flows, key)
			removed++
		}
	}
	t.evicted += uint64(removed)
	return removed
}

// Each calls fn for every tracked flow in unspecified order.
func (t *Table) Each(fn func(key model.FlowKey, state model.FlowState)) {
	for key, state := range t.flows {
		fn(key, *state)
	}
}
