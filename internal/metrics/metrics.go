// Package metrics wires lockstep.MetricsRecorder to Prometheus collectors,
// one gauge/counter per event the engine reports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements lockstep.MetricsRecorder.
type Metrics struct {
	peers         prometheus.Gauge
	stalls        prometheus.Counter
	recoveries    prometheus.Counter
	resendsSent   prometheus.Counter
	resendsServed prometheus.Counter
}

// New builds a Metrics and registers its collectors against reg. Passing
// prometheus.DefaultRegisterer matches the behavior of exposing the
// process's default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lockstep",
			Name:      "peers_connected",
			Help:      "Number of sealed roster participants for the current session.",
		}),
		stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lockstep",
			Name:      "stalls_total",
			Help:      "Number of times the engine entered the out-of-sync substate.",
		}),
		recoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lockstep",
			Name:      "recoveries_total",
			Help:      "Number of times the engine returned to in-sync after a stall.",
		}),
		resendsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lockstep",
			Name:      "resends_sent_total",
			Help:      "Number of Resend requests this peer broadcast.",
		}),
		resendsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lockstep",
			Name:      "resends_served_total",
			Help:      "Number of Resend requests this peer answered for others.",
		}),
	}
	reg.MustRegister(m.peers, m.stalls, m.recoveries, m.resendsSent, m.resendsServed)
	return m
}

// RecordPeers implements lockstep.MetricsRecorder.
func (m *Metrics) RecordPeers(n int) { m.peers.Set(float64(n)) }

// RecordStall implements lockstep.MetricsRecorder.
func (m *Metrics) RecordStall() { m.stalls.Inc() }

// RecordRecover implements lockstep.MetricsRecorder.
func (m *Metrics) RecordRecover() { m.recoveries.Inc() }

// RecordResendSent implements lockstep.MetricsRecorder.
func (m *Metrics) RecordResendSent() { m.resendsSent.Inc() }

// RecordResendServed implements lockstep.MetricsRecorder.
func (m *Metrics) RecordResendServed() { m.resendsServed.Inc() }
