// Package scheduler – Prometheus instrumentation for the pipeline.
//
// Label cardinality is bounded by construction: cycle results and message
// outcomes are small closed sets.
package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// cyclesTotal counts pipeline cycles by result: completed, aborted, or
	// coalesced (a tick fired while the previous cycle was still running).
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_cycles_total",
			Help: "Total number of pipeline cycles by result.",
		},
		[]string{"result"},
	)

	// messagesTotal counts processed messages by outcome.
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_total",
			Help: "Total number of processed messages by outcome.",
		},
		[]string{"outcome"},
	)

	// retriesTotal counts individual transient-failure retries.
	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_retries_total",
			Help: "Total number of transient-failure retries.",
		},
	)

	// cycleDuration records wall-clock cycle time. Buckets cover seconds to
	// tens of minutes; a cycle is dominated by AI calls.
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_cycle_duration_seconds",
			Help:    "Duration of pipeline cycles in seconds.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
		},
	)

	// watermarkTimestamp exposes the current watermark as a Unix timestamp,
	// so dashboards can alert on pipeline staleness.
	watermarkTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_watermark_timestamp_seconds",
			Help: "Unix timestamp of the last processed message.",
		},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal, messagesTotal, retriesTotal, cycleDuration, watermarkTimestamp)
}
