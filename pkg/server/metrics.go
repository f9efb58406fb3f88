package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_research_jobs_total",
			Help: "Total number of research jobs by final status",
		},
		[]string{"status"},
	)

	jobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deep_research_jobs_running",
			Help: "Research jobs currently holding a run slot",
		},
	)

	jobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deep_research_jobs_queued",
			Help: "Research jobs waiting for a run slot",
		},
	)
)
