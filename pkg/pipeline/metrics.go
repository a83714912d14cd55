package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "research_queries_total",
		Help: "Number of research queries submitted.",
	})

	queriesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_queries_finished_total",
		Help: "Number of research queries that reached a terminal status.",
	}, []string{"status"})

	stepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_step_failures_total",
		Help: "Number of step failures recorded into step errors.",
	}, []string{"step"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "research_step_duration_seconds",
		Help:    "Wall-clock duration of each pipeline step.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})
)
