package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle metrics
var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipmerge_cycles_total",
			Help: "Total number of consolidation cycles by trigger",
		},
		[]string{"trigger"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clipmerge_cycle_duration_seconds",
			Help:    "Wall time of a consolidation cycle",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	LastCycleTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipmerge_last_cycle_timestamp_seconds",
			Help: "Unix time the last cycle finished",
		},
	)

	Consolidating = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipmerge_consolidating",
			Help: "1 while a cycle is running, 0 while idle",
		},
	)
)

// Batch metrics
var (
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipmerge_batches_total",
			Help: "Total number of batches by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	FragmentsArchivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipmerge_fragments_archived_total",
			Help: "Total number of fragments moved into processed areas",
		},
	)

	EngineFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipmerge_engine_failures_total",
			Help: "Total number of failed media engine invocations by reason",
		},
		[]string{"reason"},
	)

	CompressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipmerge_compressions_total",
			Help: "Total number of intermediate compressions by outcome",
		},
		[]string{"outcome"},
	)

	RecoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipmerge_recovered_batches_total",
			Help: "Total number of interrupted batches resolved at cycle start by action",
		},
		[]string{"action"},
	)
)

// Watch metrics
var (
	WatchEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipmerge_watch_events_total",
			Help: "Total number of relevant filesystem events by kind",
		},
		[]string{"kind"},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipmerge_watched_directories",
			Help: "Number of directories registered with the file watcher",
		},
	)
)
