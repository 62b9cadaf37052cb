package queue

import (
	"Go2NetGuard/internal/model"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkt(n int) *model.PacketInfo {
	return &model.PacketInfo{Length: n}
}

func TestOfferThenTakeIsFIFO(t *testing.T) {
	q := New(4)
	for i := 1; i <= 3; i++ {
		require.True(t, q.Offer(pkt(i)))
	}
	for i := 1; i <= 3; i++ {
		p, ok := q.Take(time.Second)
		require.True(t, ok)
		assert.Equal(t, i, p.Length)
	}
}

func TestOfferOnFullQueueDoesNotBlock(t *testing.T) {
	q := New(2)
	require.True(t, q.Offer(pkt(1)))
	require.True(t, q.Offer(pkt(2)))

	done := make(chan bool, 1)
	go func() { done <- q.Offer(pkt(3)) }()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Offer blocked on a full queue")
	}
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, q.Cap())
}

func TestTakeTimesOut(t *testing.T) {
	q := New(1)
	start := time.Now()
	p, ok := q.Take(20 * time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, p)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestCloseRejectsLaterOffers(t *testing.T) {
	q := New(4)
	require.True(t, q.Offer(pkt(1)))
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Offer(pkt(2)))
	assert.Equal(t, uint64(1), q.Rejected())
	assert.Equal(t, uint64(0), q.Dropped())

	p, ok := q.TryTake()
	require.True(t, ok)
	assert.Equal(t, 1, p.Length)
	_, ok = q.TryTake()
	assert.False(t, ok)
}

func TestNilPacketIsRejected(t *testing.T) {
	q := New(4)
	assert.False(t, q.Offer(nil))
	assert.Equal(t, uint64(1), q.Rejected())
	assert.Equal(t, uint64(0), q.Dropped())
	assert.Zero(t, q.Len())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := New(16)
	const total = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if q.Offer(pkt(i)) {
				i++
			}
		}
	}()

	next := 0
	for next < total {
		p, ok := q.Take(time.Second)
		require.True(t, ok)
		require.Equal(t, next, p.Length)
		next++
	}
	wg.Wait()
}
