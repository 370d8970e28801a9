// Package metrics holds the Prometheus collectors shared by the harvester
// and the tagging pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Invocations counts remote API invocations by outcome (ok, rate_limited, error).
	Invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_invocations_total",
			Help: "Total number of remote API invocations",
		},
		[]string{"outcome"},
	)

	// RateLimitWaits counts backoff waits caused by rate-limit errors.
	RateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_rate_limit_waits_total",
			Help: "Total number of rate-limit backoff waits",
		},
	)

	// RateLimitWaitSeconds sums the seconds spent in rate-limit backoff.
	RateLimitWaitSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_rate_limit_wait_seconds_total",
			Help: "Total seconds spent waiting on rate limits",
		},
	)

	// RecordsHarvested counts records appended to the corpus.
	RecordsHarvested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_records_harvested_total",
			Help: "Total number of records appended to the corpus",
		},
	)

	// Endpoints counts processed endpoints per run kind and status.
	Endpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_endpoints_total",
			Help: "Total number of processed endpoints",
		},
		[]string{"kind", "status"},
	)

	// RecordsCategorized counts records that received at least one label.
	RecordsCategorized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_records_categorized_total",
			Help: "Total number of records assigned at least one category",
		},
	)

	// RecordsDeleted counts records dropped by the retention policy.
	RecordsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_records_deleted_total",
			Help: "Total number of records removed as location-only",
		},
	)
)

// WriteTextfile dumps the default registry to path in text exposition
// format, for the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
