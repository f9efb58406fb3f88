package research

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_runs_total",
			Help: "Total number of research runs by outcome",
		},
		[]string{"status"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deep_research_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	unitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_units_total",
			Help: "Total number of fetch+extract units by outcome",
		},
		[]string{"outcome"},
	)

	unitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deep_research_unit_duration_seconds",
			Help:    "Duration of a fetch+extract unit while holding a concurrency slot",
			Buckets: prometheus.DefBuckets,
		},
	)

	unitsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deep_research_units_in_flight",
			Help: "Units currently holding a concurrency slot across all runs",
		},
	)

	planFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deep_research_plan_failures_total",
			Help: "Total number of frames whose planning failed",
		},
	)
)
