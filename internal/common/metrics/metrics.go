// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignupUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_units_total",
			Help: "Total number of signup units of work by final status",
		},
		[]string{"status"},
	)

	SignupUnitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signup_unit_duration_seconds",
			Help:    "Duration of one signup unit of work in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"status"},
	)

	SignupWindowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_windows_total",
			Help: "Total number of processed windows by completion status",
		},
		[]string{"status"},
	)

	SignupWorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signup_workers_active",
			Help: "Number of signup workers currently running",
		},
	)

	ResultSinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_result_sink_errors_total",
			Help: "Total number of failed result log appends",
		},
		[]string{"sink"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)
)
