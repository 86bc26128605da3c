// Package metrics defines the Prometheus instrumentation for the headend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the headend.
type Metrics struct {
	TelemetryIngested  *prometheus.CounterVec
	HeartbeatsReceived *prometheus.CounterVec
	DispatchSubmitted  *prometheus.CounterVec
	DispatchAcks       *prometheus.CounterVec
	SetpointsDelivered prometheus.Counter
	SetpointsParked    prometheus.Counter
	AgentsConnected    prometheus.Gauge
	PendingSetpoints   prometheus.Gauge
	SocEvents          *prometheus.CounterVec
	JournalErrors      *prometheus.CounterVec
	BootstrapRequests  prometheus.Counter
}

// New creates and registers the metric set on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TelemetryIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bess_telemetry_ingested_total",
				Help: "Telemetry frames accepted from agents",
			},
			[]string{"site"},
		),
		HeartbeatsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bess_heartbeats_total",
				Help: "Heartbeat frames received from agents",
			},
			[]string{"asset_id"},
		),
		DispatchSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bess_dispatch_submitted_total",
				Help: "Dispatch submissions by outcome",
			},
			[]string{"outcome"}, // accepted, rejected
		),
		DispatchAcks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bess_dispatch_acks_total",
				Help: "Dispatch acknowledgements by status",
			},
			[]string{"status"}, // applied, rejected
		),
		SetpointsDelivered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bess_setpoints_delivered_total",
				Help: "Setpoints enqueued on a live agent stream",
			},
		),
		SetpointsParked: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bess_setpoints_parked_total",
				Help: "Setpoints parked for delivery on reconnect",
			},
		),
		AgentsConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bess_agents_connected",
				Help: "Currently registered agent streams",
			},
		),
		PendingSetpoints: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bess_pending_setpoints",
				Help: "Setpoints waiting for an agent to reconnect",
			},
		),
		SocEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bess_soc_events_total",
				Help: "SOC boundary events emitted",
			},
			[]string{"event_type"},
		),
		JournalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bess_journal_errors_total",
				Help: "Journal operations that failed (best-effort path)",
			},
			[]string{"op"},
		),
		BootstrapRequests: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bess_bootstrap_requests_total",
				Help: "Bootstrap RPCs served",
			},
		),
	}
}
