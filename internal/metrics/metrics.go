// Package metrics exposes Prometheus counters for the monitor pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	monitorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "searchlight",
		Name:      "monitor_runs_total",
		Help:      "Monitor runs by outcome.",
	}, []string{"outcome"})

	alertsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "searchlight",
		Name:      "alerts_written_total",
		Help:      "Alerts persisted to the cluster by state.",
	}, []string{"state"})

	actions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "searchlight",
		Name:      "actions_total",
		Help:      "Action dispatch outcomes.",
	}, []string{"outcome"})

	bulkRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "searchlight",
		Name:      "alert_bulk_retries_total",
		Help:      "Bulk alert-save attempts retried on backpressure.",
	})
)

// RecordMonitorRun counts one completed monitor run. Outcome is "ok" or "error".
func RecordMonitorRun(outcome string) { monitorRuns.WithLabelValues(outcome).Inc() }

// RecordAlertWritten counts one alert translated into the save bulk.
func RecordAlertWritten(state string) { alertsWritten.WithLabelValues(state).Inc() }

// RecordAction counts one action dispatch outcome: "published", "throttled" or "failed".
func RecordAction(outcome string) { actions.WithLabelValues(outcome).Inc() }

// RecordBulkRetry counts one bulk resubmission caused by per-item backpressure.
func RecordBulkRetry() { bulkRetries.Inc() }
