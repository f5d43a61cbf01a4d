package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecordsProcessed counts ingestion records by final outcome
	// (processed, duplicate, client_fault, retryable_fault).
	RecordsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaprep_records_processed_total",
			Help: "Total number of ingestion records processed by outcome",
		},
		[]string{"outcome"},
	)

	// StageDuration observes wall-clock duration of each pipeline stage.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaprep_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// SegmentsUploaded counts GOP segments uploaded to asset storage.
	SegmentsUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediaprep_segments_uploaded_total",
			Help: "Total number of GOP segments uploaded",
		},
	)

	// TasksDispatched counts task descriptors handed to the task topic.
	TasksDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaprep_tasks_dispatched_total",
			Help: "Total number of task descriptors dispatched",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		RecordsProcessed,
		StageDuration,
		SegmentsUploaded,
		TasksDispatched,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
