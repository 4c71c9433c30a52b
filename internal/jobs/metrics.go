package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_jobs_started_total",
		Help: "The total number of pricing jobs started",
	}, []string{"operation"})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_jobs_finished_total",
		Help: "The total number of pricing jobs that reached a terminal status",
	}, []string{"operation", "status"})

	itemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_items_processed_total",
		Help: "The total number of line items processed by pricing jobs",
	}, []string{"outcome"}) // outcome: success or a failure reason

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricing_batch_duration_seconds",
		Help:    "Duration of one pricing batch, including the progress write.",
		Buckets: prometheus.LinearBuckets(0.05, 0.1, 10),
	}, []string{"operation"})

	jobsMarkedStuck = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricing_jobs_marked_stuck_total",
		Help: "The total number of jobs the supervisor declared stuck",
	})
)
