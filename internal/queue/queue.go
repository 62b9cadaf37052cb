// Package queue provides the bounded buffer between a packet source and the
// analysis loop.
package queue

import (
	"Go2NetGuard/internal/model"
	"sync"
	"sync/atomic"
	"time"
)

// Queue is a bounded FIFO of packets. Offer never blocks; packets offered to
// a full queue are dropped and counted. It supports one producer and one
// consumer running concurrently.
type Queue struct {
	ch chan *model.PacketInfo

	// mu orders Offer against Close: once Close returns no Offer succeeds.
	mu     sync.RWMutex
	closed bool

	dropped  atomic.Uint64
	rejected atomic.Uint64
}

// New creates a queue holding at most capacity packets.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan *model.PacketInfo, capacity)}
}

// Offer enqueues p if there is room. It returns false when the queue is full
// or closed. A nil packet is rejected.
func (q *Queue) Offer(p *model.PacketInfo) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed || p == nil {
		q.rejected.Add(1)
		return false
	}
	select {
	case q.ch <- p:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Take waits up to timeout for a packet. ok is false on timeout.
func (q *Queue) Take(timeout time.Duration) (p *model.PacketInfo, ok bool) {
	select {
	case p = <-q.ch:
		return p, true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p = <-q.ch:
		return p, true
	case <-timer.C:
		return nil, false
	}
}

// TryTake returns a queued packet without waiting.
func (q *Queue) TryTake() (*model.PacketInfo, bool) {
	select {
	case p := <-q.ch:
		return p, true
	default:
		return nil, false
	}
}

// Close stops the queue from accepting packets. Packets already queued can
// still be taken.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *Queue) Len() int { return len(q.ch) }
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped counts packets refused because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Rejected counts packets refused after Close.
func (q *Queue) Rejected() uint64 { return q.rejected.Load() }
