// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Total number of evaluated submissions by resulting status",
		},
		[]string{"day", "status"},
	)

	RejectedSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_rejected_total",
			Help: "Uploads rejected before anything was recorded",
		},
		[]string{"day"},
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "submission_evaluation_duration_seconds",
			Help:    "Time spent running the day rubric for an upload",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"day"},
	)

	SimilarityScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "submission_similarity_score",
			Help:    "Distribution of similarity scores against prior passed submissions",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"day"},
	)

	SQLChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sql_solution_checks_total",
			Help: "Total number of SQL solution checks by verdict",
		},
		[]string{"status"},
	)

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_total",
			Help: "Background tasks by type and outcome",
		},
		[]string{"type", "result"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
