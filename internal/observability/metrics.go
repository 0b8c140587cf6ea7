package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects turn-level counters and histograms.
type Metrics struct {
	// TurnCounter tracks completed turns.
	// Labels: group, trigger (message|scheduled), status (success|error)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures whole-turn wall time in seconds.
	// Labels: group
	TurnDuration *prometheus.HistogramVec

	// MountRejections counts extra mounts dropped by the validator.
	// Labels: group, reason
	MountRejections *prometheus.CounterVec

	// OutputTruncations counts stream caps being hit.
	// Labels: stream (stdout|stderr)
	OutputTruncations *prometheus.CounterVec

	// SnapshotWrites counts IPC snapshot files written.
	// Labels: kind (tasks|groups)
	SnapshotWrites *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
// A nil registerer uses the default prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TurnCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gigaclaw_turns_total",
			Help: "Completed agent turns by group, trigger and status",
		}, []string{"group", "trigger", "status"}),

		TurnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gigaclaw_turn_duration_seconds",
			Help:    "Wall time of agent turns",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"group"}),

		MountRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gigaclaw_mount_rejections_total",
			Help: "Extra mount requests dropped by the security validator",
		}, []string{"group", "reason"}),

		OutputTruncations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gigaclaw_output_truncations_total",
			Help: "Container output streams that hit their byte cap",
		}, []string{"stream"}),

		SnapshotWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gigaclaw_snapshot_writes_total",
			Help: "IPC snapshot files written before turns",
		}, []string{"kind"}),
	}
}
