// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guard"

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all IDS metrics.
type Registry struct {
	// Capture and queue
	PacketsCaptured *prometheus.CounterVec
	QueueDropped    prometheus.Counter
	QueueDepth      prometheus.Gauge

	// Analysis loop
	PacketsProcessed prometheus.Counter
	ProcessingPanics prometheus.Counter
	DrainDiscarded   prometheus.Counter
	FlowsActive      prometheus.Gauge
	FlowsEvicted     prometheus.Counter

	// Detection and alerting
	Threats         *prometheus.CounterVec
	Alerts          *prometheus.CounterVec
	SinkDeliveries  *prometheus.CounterVec
	EvidencePackets *prometheus.CounterVec

	// API
	APIRequests *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.PacketsCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "packets_total",
		Help:      "Packets seen by the capture source, by parse result.",
	}, []string{"result"})
	r.QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "dropped_total",
		Help:      "Packets dropped because the ingest queue was full.",
	})
	r.QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Packets waiting in the ingest queue.",
	})

	r.PacketsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "packets_processed_total",
		Help:      "Packets run through feature extraction and detection.",
	})
	r.ProcessingPanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "panics_total",
		Help:      "Packets whose processing panicked and was recovered.",
	})
	r.DrainDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "drain_discarded_total",
		Help:      "Queued packets discarded when the drain deadline passed.",
	})
	r.FlowsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "flows",
		Name:      "active",
		Help:      "Flows currently tracked by the flow table.",
	})
	r.FlowsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "flows",
		Name:      "evicted_total",
		Help:      "Idle flows evicted from the flow table.",
	})

	r.Threats = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "detection",
		Name:      "threats_total",
		Help:      "Threats detected, by detector type.",
	}, []string{"type"})
	r.Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "total",
		Help:      "Alerts built, by severity.",
	}, []string{"severity"})
	r.SinkDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "sink_deliveries_total",
		Help:      "Alert deliveries per sink, by result (sent, failed, dropped).",
	}, []string{"sink", "result"})
	r.EvidencePackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evidence",
		Name:      "packets_total",
		Help:      "Packets handed to the evidence recorder, by result.",
	}, []string{"result"})

	r.APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Alert API requests, by route and status code.",
	}, []string{"route", "code"})

	return r
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
