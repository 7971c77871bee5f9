package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Command metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploything_commands_total",
			Help: "Total number of commands handled by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deploything_command_duration_seconds",
			Help:    "Command execution time in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	ManagedContainers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deploything_managed_containers",
			Help: "Number of containers started by this agent and still tracked",
		},
	)

	// Reporting metrics
	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploything_snapshots_total",
			Help: "Total number of snapshot ticks by result",
		},
		[]string{"result"},
	)

	// Transport metrics
	FramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploything_frames_received_total",
			Help: "Total number of frames received from the control plane by kind",
		},
		[]string{"kind"},
	)

	OutboundWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deploything_outbound_write_failures_total",
			Help: "Total number of outbound frames that failed to write",
		},
	)

	PingsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deploything_pings_total",
			Help: "Total number of pings answered",
		},
	)

	// Runtime metrics
	RuntimeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploything_runtime_events_total",
			Help: "Total number of container lifecycle events by action",
		},
		[]string{"action"},
	)
)

// Snapshot tick results
const (
	SnapshotSent    = "sent"
	SnapshotSkipped = "skipped"
)

func init() {
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(ManagedContainers)
	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(FramesReceived)
	prometheus.MustRegister(OutboundWriteFailures)
	prometheus.MustRegister(PingsTotal)
	prometheus.MustRegister(RuntimeEventsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
