// Package runner orchestrates monitor executions: it loads live alerts,
// collects inputs, evaluates triggers, dispatches actions and persists the
// composed alerts.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/searchlight-alerting/searchlight/internal/alertstore"
	"github.com/searchlight-alerting/searchlight/internal/composer"
	"github.com/searchlight-alerting/searchlight/internal/dispatch"
	"github.com/searchlight-alerting/searchlight/internal/input"
	"github.com/searchlight-alerting/searchlight/internal/logging"
	"github.com/searchlight-alerting/searchlight/internal/metrics"
	"github.com/searchlight-alerting/searchlight/internal/models"
	"github.com/searchlight-alerting/searchlight/internal/settings"
	"github.com/searchlight-alerting/searchlight/internal/trigger"
)

// maxConcurrentRuns bounds how many monitors execute at once.
const maxConcurrentRuns = 8

// Runner executes monitors scheduled by the job scheduler.
type Runner struct {
	store      *alertstore.Store
	collector  *input.Collector
	evaluator  trigger.Evaluator
	dispatcher *dispatch.Dispatcher
	settings   *settings.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sem    *semaphore.Weighted
}

// New creates a runner. Call Start before scheduling jobs on it.
func New(store *alertstore.Store, collector *input.Collector, dispatcher *dispatch.Dispatcher, st *settings.Store) *Runner {
	return &Runner{
		store:      store,
		collector:  collector,
		dispatcher: dispatcher,
		settings:   st,
		sem:        semaphore.NewWeighted(maxConcurrentRuns),
	}
}

// Start establishes the runner's lifecycle context.
func (r *Runner) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight runs and waits for them to unwind.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// RunJob executes a scheduled job asynchronously. Jobs that are not monitors
// are rejected; a panicking run is recovered so one monitor cannot take the
// scheduler down.
func (r *Runner) RunJob(job any, periodStart, periodEnd time.Time) error {
	monitor, ok := job.(*models.Monitor)
	if !ok {
		return fmt.Errorf("invalid job type %T, expected a monitor", job)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Str("monitorId", monitor.ID).
					Interface("panic", rec).
					Msg("Monitor run panicked")
				metrics.RecordMonitorRun("error")
			}
		}()

		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			return
		}
		defer r.sem.Release(1)

		r.RunMonitor(r.ctx, monitor, periodStart, periodEnd, false)
	}()
	return nil
}

// PostIndex sweeps stale alerts after a monitor definition was updated.
// Failures are logged, never propagated: the index write already succeeded.
func (r *Runner) PostIndex(monitor *models.Monitor) {
	r.moveAlerts(monitor.ID, monitor)
}

// PostDelete sweeps all of a deleted monitor's alerts into history.
func (r *Runner) PostDelete(monitorID string) {
	r.moveAlerts(monitorID, nil)
}

func (r *Runner) moveAlerts(monitorID string, newMonitor *models.Monitor) {
	policy := r.settings.Snapshot().MoveAlertsBackoff()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := policy.Do(r.ctx, func() error {
			return r.store.MoveAlerts(r.ctx, monitorID, newMonitor)
		}, nil)
		if err != nil {
			log.Error().Err(err).
				Str("monitorId", monitorID).
				Msg("Failed to move alerts for stale monitor")
		}
	}()
}

// RunMonitor executes one monitor over the given period and returns the run
// result. With dryrun set, or for an unsaved monitor, nothing is written and
// no actions are published.
func (r *Runner) RunMonitor(ctx context.Context, monitor *models.Monitor, periodStart, periodEnd time.Time, dryrun bool) models.MonitorRunResult {
	ctx, runID := logging.WithRunID(ctx, "")
	logger := log.With().
		Str("runId", runID).
		Str("monitorId", monitor.ID).
		Str("monitor", monitor.Name).
		Logger()

	if periodStart.Equal(periodEnd) {
		logger.Warn().Time("period", periodStart).Msg("Start and end time are the same")
	}

	result := models.MonitorRunResult{
		MonitorName:    monitor.Name,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		TriggerResults: map[string]models.TriggerRunResult{},
	}

	currentAlerts, err := r.loadAlerts(ctx, monitor)
	if err != nil {
		// Without the live alerts the composer would resurrect or duplicate
		// alerts, so the run stops before any write.
		logger.Error().Err(err).Msg("Monitor run aborted, could not load current alerts")
		result.Error = err
		metrics.RecordMonitorRun("error")
		return result
	}

	inputResults, err := r.collector.Collect(ctx, monitor, periodStart, periodEnd)
	if err != nil {
		logger.Error().Err(err).Msg("Monitor run aborted on unsupported input")
		result.Error = err
		metrics.RecordMonitorRun("error")
		return result
	}
	result.InputResults = inputResults

	var updated []*models.Alert
	now := time.Now()
	for _, trig := range monitor.Triggers {
		tctx := trigger.ExecutionContext{
			Monitor:     monitor,
			Trigger:     trig,
			Results:     inputResults.Results,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			Alert:       currentAlerts[trig.ID],
			Error:       result.AlertError(),
		}

		triggerResult := r.evaluator.Run(ctx, tctx)

		if dispatch.IsTriggerActionable(tctx, triggerResult) {
			for _, action := range trig.Actions {
				triggerResult.ActionResults[action.ID] = r.dispatcher.RunAction(ctx, action, tctx, dryrun)
			}
		}
		result.TriggerResults[trig.ID] = triggerResult

		if alert := composer.Compose(tctx, triggerResult, now); alert != nil {
			updated = append(updated, alert)
		}
	}

	if !dryrun && monitor.ID != models.NoID && len(updated) > 0 {
		if err := r.store.SaveAlerts(ctx, updated); err != nil {
			logger.Error().Err(err).Msg("Failed to save alerts")
			result.Error = err
			metrics.RecordMonitorRun("error")
			return result
		}
	}

	if result.AlertError() != nil {
		metrics.RecordMonitorRun("error")
	} else {
		metrics.RecordMonitorRun("ok")
	}
	logger.Debug().
		Int("triggers", len(result.TriggerResults)).
		Int("alertsWritten", len(updated)).
		Msg("Monitor run finished")
	return result
}

func (r *Runner) loadAlerts(ctx context.Context, monitor *models.Monitor) (map[string]*models.Alert, error) {
	if monitor.ID == models.NoID {
		// Unsaved monitors (dryrun executions) have no persisted alerts.
		return map[string]*models.Alert{}, nil
	}
	if err := r.store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return r.store.LoadCurrentAlerts(ctx, monitor)
}
