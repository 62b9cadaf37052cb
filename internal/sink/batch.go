package sink

import (
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/model"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBatchSize     = 50
	defaultBatchInterval = 2 * time.Second
)

// batchWriter queues alerts and hands them to write in batches, either when
// a batch fills up or every interval.
type batchWriter struct {
	name      string
	write     func(batch []*model.Alert) error
	size      int
	interval  time.Duration
	queue     chan *model.Alert
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	written atomic.Uint64
	dropped atomic.Uint64
	batches atomic.Uint64
	failed  atomic.Uint64
}

func newBatchWriter(name string, queueSize int, write func([]*model.Alert) error) *batchWriter {
	if queueSize <= 0 {
		queueSize = 10000
	}
	w := &batchWriter{
		name:     name,
		write:    write,
		size:     defaultBatchSize,
		interval: defaultBatchInterval,
		queue:    make(chan *model.Alert, queueSize),
		done:     make(chan struct{}),
	}
	return w
}

func (w *batchWriter) start() {
	w.wg.Add(1)
	go w.writerLoop()
	log.Printf("Alert writer %s started", w.name)
}

// Deliver queues an alert for batch writing.
func (w *batchWriter) Deliver(alert *model.Alert) {
	select {
	case w.queue <- alert:
	default:
		n := w.dropped.Add(1)
		metrics.Get().SinkDeliveries.WithLabelValues(w.name, "dropped").Inc()
		if n%1000 == 1 {
			log.Printf("Alert writer %s: queue full, dropped %d alerts", w.name, n)
		}
	}
}

func (w *batchWriter) writerLoop() {
	defer w.wg.Done()

	batch := make([]*model.Alert, 0, w.size)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			w.writeBatch(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case alert := <-w.queue:
			batch = append(batch, alert)
			if len(batch) >= w.size {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.done:
			for {
				select {
				case alert := <-w.queue:
					batch = append(batch, alert)
					if len(batch) >= w.size {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *batchWriter) writeBatch(batch []*model.Alert) {
	if err := w.write(batch); err != nil {
		w.failed.Add(uint64(len(batch)))
		metrics.Get().SinkDeliveries.WithLabelValues(w.name, "failed").Add(float64(len(batch)))
		log.Printf("ERROR: alert writer %s failed to write %d alerts: %v", w.name, len(batch), err)
		return
	}
	w.written.Add(uint64(len(batch)))
	w.batches.Add(1)
	metrics.Get().SinkDeliveries.WithLabelValues(w.name, "sent").Add(float64(len(batch)))
}

// stop flushes the queue and waits for the loop to exit.
func (w *batchWriter) stop() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		log.Printf("Alert writer %s stopped (written=%d, failed=%d, dropped=%d, batches=%d)",
			w.name, w.written.Load(), w.failed.Load(), w.dropped.Load(), w.batches.Load())
	})
}
