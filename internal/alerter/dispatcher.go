package alerter

import (
	"Go2NetGuard/internal/metrics"
	"Go2NetGuard/internal/model"
	"io"
	"log"
	"sync"
)

type route struct {
	name        string
	sink        model.Sink
	minSeverity model.Severity
}

// Dispatcher fans alerts out to every sink whose minimum severity the alert
// meets. It is the single delivery point the pipeline calls.
type Dispatcher struct {
	mu     sync.RWMutex
	routes []route
}

// NewDispatcher creates a dispatcher with no sinks.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Add registers sink under name. Alerts below minSeverity skip it.
func (d *Dispatcher) Add(name string, sink model.Sink, minSeverity model.Severity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, route{name: name, sink: sink, minSeverity: minSeverity})
}

// Len returns the number of registered sinks.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.routes)
}

// Deliver hands alert to each matching sink.
func (d *Dispatcher) Deliver(alert *model.Alert) {
	metrics.Get().Alerts.WithLabelValues(alert.Severity.String()).Inc()

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.routes {
		if alert.Severity < r.minSeverity {
			continue
		}
		r.sink.Deliver(alert)
	}
}

// Close closes every sink that implements io.Closer, in registration order.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.routes {
		if c, ok := r.sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Printf("Error closing alert sink %s: %v", r.name, err)
			}
		}
	}
	d.routes = nil
}
