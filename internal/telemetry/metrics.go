package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// JobsStarted counts ingestion jobs created, by kind.
	JobsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvetrack",
			Name:      "jobs_started_total",
			Help:      "Total number of ingestion jobs started",
		},
		[]string{"kind"},
	)

	// JobsFinished counts terminal job transitions, by kind and status.
	JobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvetrack",
			Name:      "jobs_finished_total",
			Help:      "Total number of ingestion jobs reaching a terminal state",
		},
		[]string{"kind", "status"},
	)

	// RecordsUpserted counts record writes by three-way outcome.
	RecordsUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvetrack",
			Name:      "records_upserted_total",
			Help:      "Total number of record upserts by outcome",
		},
		[]string{"outcome"},
	)

	// RecordParseErrors counts malformed records skipped by the pipeline.
	RecordParseErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cvetrack",
			Name:      "record_parse_errors_total",
			Help:      "Total number of records skipped due to parse errors",
		},
	)

	// AlertsCreated counts alerts emitted by the watchlist evaluator.
	AlertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvetrack",
			Name:      "alerts_created_total",
			Help:      "Total number of alerts created",
		},
		[]string{"type"},
	)

	// SearchDuration observes record store search latency.
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cvetrack",
			Name:      "search_duration_seconds",
			Help:      "Latency of record store searches",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// LogSubscribers gauges live log-stream subscribers.
	LogSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cvetrack",
			Name:      "log_stream_subscribers",
			Help:      "Number of connected job log stream subscribers",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// This function is idempotent and can be called multiple times safely.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(JobsStarted)
		prometheus.DefaultRegisterer.Register(JobsFinished)
		prometheus.DefaultRegisterer.Register(RecordsUpserted)
		prometheus.DefaultRegisterer.Register(RecordParseErrors)
		prometheus.DefaultRegisterer.Register(AlertsCreated)
		prometheus.DefaultRegisterer.Register(SearchDuration)
		prometheus.DefaultRegisterer.Register(LogSubscribers)
	})
}
