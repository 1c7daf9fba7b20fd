// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Jobs finished by the queue, by type and terminal status.
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealpulse_jobs_total",
		Help: "Jobs processed by the ingestion queue",
	}, []string{"type", "status"})

	// Job attempt latency.
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealpulse_job_duration_seconds",
		Help:    "Duration of a single job attempt",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"type"})

	// Jobs waiting to be picked up.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dealpulse_queue_depth",
		Help: "Jobs waiting in the queue",
	})

	// Candidate outcomes after dedup, by merchant.
	IngestOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealpulse_ingest_outcomes_total",
		Help: "Candidate deals by dedup outcome",
	}, []string{"merchant", "outcome"})

	// Navigation retries triggered by transient page-load failures.
	NavigationRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dealpulse_navigation_retries_total",
		Help: "Browser navigation retries",
	})

	// Pages classified as anti-bot blocks.
	BlockedPages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealpulse_blocked_pages_total",
		Help: "Rendered pages detected as anti-bot blocks",
	}, []string{"kind"})

	// Scores that fell back to the neutral default.
	ScoreFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dealpulse_score_fallbacks_total",
		Help: "Quality scores replaced by the neutral default",
	})
)

var once sync.Once

// Init registers all collectors with the default registry. Safe to call more
// than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			JobsTotal,
			JobDuration,
			QueueDepth,
			IngestOutcomes,
			NavigationRetries,
			BlockedPages,
			ScoreFallbacks,
		)
	})
}
