package alerter

import (
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/model"
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher sends one alert to a remote system.
type Publisher interface {
	Publish(ctx context.Context, alert *model.Alert) error
}

// AsyncSink decouples a Publisher from the analysis loop with a bounded
// buffer. Alerts that do not fit are dropped and counted.
type AsyncSink struct {
	name      string
	publisher Publisher
	timeout   time.Duration
	queue     chan *model.Alert
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewAsyncSink starts a worker publishing through p. Each publish gets
// timeout to complete.
func NewAsyncSink(name string, p Publisher, bufferSize int, timeout time.Duration) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &AsyncSink{
		name:      name,
		publisher: p,
		timeout:   timeout,
		queue:     make(chan *model.Alert, bufferSize),
		done:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Deliver queues alert without blocking.
func (s *AsyncSink) Deliver(alert *model.Alert) {
	select {
	case <-s.done:
		s.drop()
		return
	default:
	}
	select {
	case s.queue <- alert:
	default:
		s.drop()
	}
}

func (s *AsyncSink) drop() {
	n := s.dropped.Add(1)
	metrics.Get().SinkDeliveries.WithLabelValues(s.name, "dropped").Inc()
	if n%1000 == 1 {
		log.Printf("Alert sink %s: buffer full, dropped %d alerts so far", s.name, n)
	}
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for {
		select {
		case alert := <-s.queue:
			s.publish(alert)
		case <-s.done:
			// Flush what is already buffered.
			for {
				select {
				case alert := <-s.queue:
					s.publish(alert)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) publish(alert *model.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, alert); err != nil {
		s.failed.Add(1)
		metrics.Get().SinkDeliveries.WithLabelValues(s.name, "failed").Inc()
		log.Printf("ERROR: alert sink %s failed to publish alert %s: %v", s.name, alert.ID, err)
		return
	}
	s.sent.Add(1)
	metrics.Get().SinkDeliveries.WithLabelValues(s.name, "sent").Inc()
}

// Close flushes buffered alerts, stops the worker and closes the publisher
// if it is an io.Closer.
func (s *AsyncSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if c, ok := s.publisher.(io.Closer); ok {
			err = c.Close()
		}
		log.Printf("Alert sink %s stopped (sent=%d, failed=%d, dropped=%d)", s.name, s.sent.Load(), s.failed.Load(), s.dropped.Load())
	})
	return err
}

// Stats returns sent, failed and dropped counts.
func (s *AsyncSink) Stats() (sent, failed, dropped uint64) {
	return s.sent.Load(), s.failed.Load(), s.dropped.Load()
}
