package manager

import (
	"Go2NetGuard/internal/alerter"
	"Go2NetGuard/internal/detection"
	"Go2NetGuard/internal/engine/feature"
	"Go2NetGuard/internal/engine/flowtable"
	"Go2NetGuard/internal/engine/spread"
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/model"
	"Go2NetGuard/internal/queue"
	"Go2NetGuard/internal/snapshot"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle stage of a Manager.
type State int32

const (
	Idle State = iota
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var ErrNotIdle = errors.New("manager has already been started")

// Recorder keeps the frames of packets that raised alerts.
type Recorder interface {
	Record(pkt *model.PacketInfo)
}

// Options tunes the analysis loop.
type Options struct {
	// PollInterval bounds how long the consumer waits for a packet before it
	// checks for stop and does housekeeping.
	PollInterval time.Duration
	// DrainTimeout bounds how long Stop keeps processing queued packets.
	// Packets still queued after it are discarded.
	DrainTimeout time.Duration
	// FlowIdleTimeout evicts flows idle for longer, in packet time. Zero
	// disables eviction.
	FlowIdleTimeout time.Duration
	// SweepEvery also runs eviction after this many packets.
	SweepEvery int

	// Spread, when set, feeds the dst_spread feature.
	Spread *spread.Sketch

	Builder          *alerter.Builder
	Evidence         Recorder
	Snapshots        *snapshot.Writer
	SnapshotInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.DrainTimeout < 0 {
		o.DrainTimeout = 0
	}
	if o.SweepEvery <= 0 {
		o.SweepEvery = 10000
	}
	if o.Builder == nil {
		o.Builder = alerter.NewBuilder()
	}
	return o
}

// Stats is a point-in-time view of the pipeline counters.
type Stats struct {
	State         State
	Processed     uint64
	Threats       uint64
	Panics        uint64
	Discarded     uint64
	Flows         int64
	Evicted       uint64
	QueueLen      int
	QueueDropped  uint64
	QueueRejected uint64
}

// Manager drives packets from the ingest queue through feature extraction,
// detection and alert building. The flow table, extractor and detection
// engine are only touched by the consumer goroutine.
type Manager struct {
	opts      Options
	queue     *queue.Queue
	table     *flowtable.Table
	extractor *feature.Extractor
	detector  *detection.Engine
	sink      model.Sink

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once

	consumerDone chan struct{}
	sourceDone   chan struct{}
	sourceErr    error

	closers []func()

	processed atomic.Uint64
	threats   atomic.Uint64
	panics    atomic.Uint64
	discarded atomic.Uint64
	flows     atomic.Int64
	evicted   atomic.Uint64

	sinceSweep   int
	lastSnapshot time.Time
}

// New creates an idle manager reading from q and delivering alerts to sink.
func New(q *queue.Queue, detector *detection.Engine, sink model.Sink, opts Options) *Manager {
	table := flowtable.New()
	extractor := feature.NewExtractor(table)
	if opts.Spread != nil {
		extractor.SetSpread(opts.Spread)
	}
	return &Manager{
		opts:         opts.withDefaults(),
		queue:        q,
		table:        table,
		extractor:    extractor,
		detector:     detector,
		sink:         sink,
		stop:         make(chan struct{}),
		consumerDone: make(chan struct{}),
		sourceDone:   make(chan struct{}),
	}
}

// OnStop registers fn to run after the consumer has exited, in registration
// order.
func (m *Manager) OnStop(fn func()) {
	m.closers = append(m.closers, fn)
}

// State returns the current lifecycle stage.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Start launches the consumer loop and, when src is not nil, a producer
// goroutine running src. It may be called once.
func (m *Manager) Start(src model.PacketSource) error {
	if !m.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrNotIdle
	}
	m.lastSnapshot = time.Now()

	go m.consume()

	if src == nil {
		close(m.sourceDone)
	} else {
		go func() {
			defer close(m.sourceDone)
			if err := src.Run(m.stop, m.Offer); err != nil {
				log.Printf("ERROR: packet source failed: %v", err)
				m.sourceErr = err
			}
		}()
	}
	log.Printf("Manager started with queue capacity %d, poll interval %s.", m.queue.Cap(), m.opts.PollInterval)
	return nil
}

// Offer hands a packet to the pipeline without blocking. It returns false
// when the queue is full, the manager is stopping, or pkt is nil.
func (m *Manager) Offer(pkt *model.PacketInfo) bool {
	if m.queue.Offer(pkt) {
		return true
	}
	if pkt != nil && !m.queue.Closed() {
		metrics.Get().QueueDropped.Inc()
	}
	return false
}

// SourceDone is closed when the packet source returns.
func (m *Manager) SourceDone() <-chan struct{} {
	return m.sourceDone
}

// SourceErr returns the error the packet source ended with. It is only
// meaningful after SourceDone is closed.
func (m *Manager) SourceErr() error {
	select {
	case <-m.sourceDone:
		return m.sourceErr
	default:
		return nil
	}
}

// WaitEmpty waits up to timeout for the queue to empty. It reports whether
// it did.
func (m *Manager) WaitEmpty(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for m.queue.Len() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

// Stop closes the queue to new packets, signals the source, drains what is
// already queued within the drain timeout and waits for both goroutines.
// It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.queue.Close()
		if m.state.CompareAndSwap(int32(Idle), int32(Stopped)) {
			close(m.stop)
			m.runClosers()
			return
		}

		log.Println("Manager stopping...")
		m.state.Store(int32(Draining))
		close(m.stop)

		log.Println("Waiting for packet source to finish...")
		<-m.sourceDone
		log.Println("Waiting for analysis loop to drain...")
		<-m.consumerDone

		if m.opts.Snapshots != nil {
			m.writeSnapshot()
		}
		m.runClosers()
		m.state.Store(int32(Stopped))

		s := m.Stats()
		log.Printf("Manager stopped. processed=%d threats=%d dropped=%d discarded=%d panics=%d",
			s.Processed, s.Threats, s.QueueDropped, s.Discarded, s.Panics)
	})
}

func (m *Manager) runClosers() {
	for _, fn := range m.closers {
		fn()
	}
}

// Stats returns the current counters. It is safe to call from any goroutine.
func (m *Manager) Stats() Stats {
	return Stats{
		State:         m.State(),
		Processed:     m.processed.Load(),
		Threats:       m.threats.Load(),
		Panics:        m.panics.Load(),
		Discarded:     m.discarded.Load(),
		Flows:         m.flows.Load(),
		Evicted:       m.evicted.Load(),
		QueueLen:      m.queue.Len(),
		QueueDropped:  m.queue.Dropped(),
		QueueRejected: m.queue.Rejected(),
	}
}

func (m *Manager) consume() {
	defer close(m.consumerDone)
	for {
		select {
		case <-m.stop:
			m.drain()
			return
		default:
		}

		pkt, ok := m.queue.Take(m.opts.PollInterval)
		if !ok {
			m.housekeeping(true)
			continue
		}
		m.process(pkt)
		m.housekeeping(false)
	}
}

// drain processes packets queued before stop until the queue is empty or
// the drain deadline passes. The remainder is discarded.
func (m *Manager) drain() {
	deadline := time.Now().Add(m.opts.DrainTimeout)
	drained := 0
	for {
		pkt, ok := m.queue.TryTake()
		if !ok {
			break
		}
		if !time.Now().Before(deadline) {
			m.discard(pkt)
			continue
		}
		m.process(pkt)
		drained++
	}
	if d := m.discarded.Load(); d > 0 {
		log.Printf("Warning: drain deadline of %s passed, discarded %d queued packets", m.opts.DrainTimeout, d)
	}
	log.Printf("Drained %d queued packets.", drained)
}

func (m *Manager) discard(*model.PacketInfo) {
	m.discarded.Add(1)
	metrics.Get().DrainDiscarded.Inc()
}

// process runs one packet through the pipeline. A panic is logged and
// counted and does not stop the loop.
func (m *Manager) process(pkt *model.PacketInfo) {
	defer func() {
		if r := recover(); r != nil {
			m.panics.Add(1)
			metrics.Get().ProcessingPanics.Inc()
			log.Printf("ERROR: recovered from panic while processing packet %+v: %v", pkt, r)
		}
	}()
	defer m.processed.Add(1)

	at := pkt.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	record := m.extractor.Extract(pkt, at)
	metrics.Get().PacketsProcessed.Inc()

	threats := m.detector.Detect(&record)
	if len(threats) == 0 {
		return
	}
	for _, t := range threats {
		m.threats.Add(1)
		metrics.Get().Threats.WithLabelValues(string(t.Type)).Inc()
		m.sink.Deliver(m.opts.Builder.Build(t, &record))
	}
	if m.opts.Evidence != nil {
		m.opts.Evidence.Record(pkt)
	}
}

// housekeeping runs flow eviction and periodic snapshots. It is called by
// the consumer after every packet and on every poll timeout.
func (m *Manager) housekeeping(idle bool) {
	if !idle {
		m.sinceSweep++
	}
	if m.opts.FlowIdleTimeout > 0 && (idle || m.sinceSweep >= m.opts.SweepEvery) {
		m.sinceSweep = 0
		if n := m.table.Sweep(m.opts.FlowIdleTimeout); n > 0 {
			m.evicted.Add(uint64(n))
			metrics.Get().FlowsEvicted.Add(float64(n))
		}
	}

	m.flows.Store(int64(m.table.Len()))
	metrics.Get().FlowsActive.Set(float64(m.table.Len()))
	metrics.Get().QueueDepth.Set(float64(m.queue.Len()))

	if m.opts.Snapshots != nil && m.opts.SnapshotInterval > 0 && time.Since(m.lastSnapshot) >= m.opts.SnapshotInterval {
		m.writeSnapshot()
	}
}

// minReportedSpread leaves sources with a single destination out of the
// snapshot summary.
const minReportedSpread = 2

func (m *Manager) writeSnapshot() {
	m.lastSnapshot = time.Now()
	var spreaders []spread.Record
	if m.opts.Spread != nil {
		spreaders = m.opts.Spread.Top(minReportedSpread)
	}
	dir, err := m.opts.Snapshots.Write(m.table, m.lastSnapshot, spreaders)
	if err != nil {
		log.Printf("ERROR: failed to write flow snapshot: %v", err)
		return
	}
	log.Printf("Flow snapshot with %d flows written to %s", m.table.Len(), dir)
}
