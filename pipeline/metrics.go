package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodprep_tasks_submitted_total",
			Help: "Total number of remote export jobs submitted",
		},
		[]string{"dataset", "kind"},
	)
	tasksFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodprep_tasks_failed_total",
			Help: "Total number of remote export jobs that failed",
		},
		[]string{"dataset", "kind"},
	)
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodprep_events_total",
			Help: "Total number of events processed by status",
		},
		[]string{"dataset", "status"},
	)
	landingWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "floodprep_landing_wait_seconds",
			Help:    "Time spent waiting for the exports to land",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
		},
		[]string{"kind"},
	)
	eventDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "floodprep_event_duration_seconds",
			Help:    "Duration of the alignment and classification of an event",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"dataset"},
	)
)
