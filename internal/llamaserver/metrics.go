package llamaserver

import "github.com/prometheus/client_golang/prometheus"

var (
	spawnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llamad",
			Subsystem: "server",
			Name:      "spawns_total",
			Help:      "Total llama-server child processes launched",
		},
	)

	spawnFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamad",
			Subsystem: "server",
			Name:      "spawn_failures_total",
			Help:      "Startup failures by reason",
		},
		[]string{"reason"},
	)

	startupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "llamad",
			Subsystem: "server",
			Name:      "startup_duration_seconds",
			Help:      "Time from spawn to first healthy response",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120},
		},
	)

	generationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llamad",
			Subsystem: "client",
			Name:      "generations_total",
			Help:      "Total streaming generation requests issued",
		},
	)

	streamFramesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llamad",
			Subsystem: "client",
			Name:      "stream_frames_dropped_total",
			Help:      "Malformed stream frames skipped without aborting generation",
		},
	)

	logitsRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llamad",
			Subsystem: "client",
			Name:      "logits_retries_total",
			Help:      "Transient logits responses retried",
		},
	)
)

func init() {
	prometheus.MustRegister(
		spawnsTotal,
		spawnFailuresTotal,
		startupDuration,
		generationsTotal,
		streamFramesDropped,
		logitsRetriesTotal,
	)
}
