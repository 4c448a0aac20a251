// Package metrics defines the Prometheus collectors of the gateway.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "harpi"

// Label values shared by the collectors.
const (
	ResultOK    = "ok"
	ResultError = "error"

	FrameAction        = "action"
	FrameLoadsOff      = "loads_off"
	FrameStatusRequest = "status_request"

	DropQueueFull   = "queue_full"
	DropQueueClosed = "queue_closed"
)

// Metrics contains all gateway metrics.
type Metrics struct {
	FramesReceived prometheus.Counter
	EventsMatched  prometheus.Counter
	EventsDropped  *prometheus.CounterVec
	FramesSent     *prometheus.CounterVec
	Transitions    prometheus.Counter
	Reloads        *prometheus.CounterVec
	Records        *prometheus.GaugeVec
	QueueDepth     prometheus.Gauge
	MachineStatus  *prometheus.GaugeVec
}

// New creates the collectors. They work unregistered, which is how
// tests use them; call Register to expose them.
func New() *Metrics {
	return &Metrics{
		FramesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "frames_received_total",
				Help:      "Total number of frames delivered to the gateway",
			},
		),

		EventsMatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "matched_total",
				Help:      "Total number of event set matches",
			},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Total number of matched events that could not be queued",
			},
			[]string{"reason"},
		),

		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "frames_sent_total",
				Help:      "Total number of frames handed to the transport",
			},
			[]string{"kind", "result"},
		),

		Transitions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "transitions_total",
				Help:      "Total number of state machine transitions",
			},
		),

		Reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "config",
				Name:      "reloads_total",
				Help:      "Total number of configuration reloads",
			},
			[]string{"result"},
		),

		Records: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "config",
				Name:      "records",
				Help:      "Records per kind in the active generation",
			},
			[]string{"kind"},
		),

		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "queue_depth",
				Help:      "Events waiting for the engine",
			},
		),

		MachineStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "machine",
				Name:      "status",
				Help:      "State machine load status (-1=undefined, 0=off, 1=on)",
			},
			[]string{"machine"},
		),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.FramesReceived,
		m.EventsMatched,
		m.EventsDropped,
		m.FramesSent,
		m.Transitions,
		m.Reloads,
		m.Records,
		m.QueueDepth,
		m.MachineStatus,
	}

	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	return nil
}

// RecordSend counts one frame handed to the transport.
func (m *Metrics) RecordSend(kind string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.FramesSent.WithLabelValues(kind, result).Inc()
}
