// Package composer computes the next alert state for a trigger from the
// previous alert, the trigger result and the run-level error. It is pure:
// all I/O happens before (load) and after (save) composition.
package composer

import (
	"time"

	"github.com/searchlight-alerting/searchlight/internal/models"
	"github.com/searchlight-alerting/searchlight/internal/trigger"
)

// errorHistoryLimit caps an alert's error history at the most recent entries.
const errorHistoryLimit = 10

// Compose returns the alert to persist for this trigger run, or nil when
// nothing should be written. The run-level error (monitor or input) wins over
// the trigger's own error.
func Compose(tctx trigger.ExecutionContext, result models.TriggerRunResult, now time.Time) *models.Alert {
	alertError := tctx.Error
	if alertError == nil {
		alertError = result.Error
	}
	prior := tctx.Alert

	var next *models.Alert
	switch {
	case alertError == nil && !result.Triggered:
		if prior == nil {
			return nil
		}
		next = prior.Clone()
		next.State = models.StateCompleted
		endTime := now
		next.EndTime = &endTime
		next.ErrorMessage = ""

	case alertError == nil && prior != nil && prior.State == models.StateAcknowledged:
		// User acknowledgement suppresses updates until the trigger stops
		// firing or a new error appears.
		return nil

	case prior != nil:
		next = prior.Clone()
		next.LastNotificationTime = &now
		if alertError != nil {
			next.State = models.StateError
			next.ErrorMessage = alertError.Error()
		} else {
			next.State = models.StateActive
			next.ErrorMessage = ""
		}

	default:
		state := models.StateActive
		var message string
		if alertError != nil {
			state = models.StateError
			message = alertError.Error()
		}
		lastNotification := now
		next = &models.Alert{
			MonitorID:            tctx.Monitor.ID,
			MonitorName:          tctx.Monitor.Name,
			TriggerID:            tctx.Trigger.ID,
			TriggerName:          tctx.Trigger.Name,
			Severity:             tctx.Trigger.Severity,
			State:                state,
			StartTime:            now,
			LastNotificationTime: &lastNotification,
			ErrorMessage:         message,
		}
	}

	next.SchemaVersion = models.AlertSchemaVersion
	next.ActionExecutionResults = mergeActionResults(prior, tctx.Trigger, result.ActionResults)
	next.ErrorHistory = mergeErrorHistory(prior, alertError, now)
	return next
}

// mergeActionResults folds this run's action results into the previous
// alert's list: throttled actions bump their throttled count, executed
// actions refresh their last execution time, and actions seen for the first
// time are appended in declaration order.
func mergeActionResults(prior *models.Alert, trig models.Trigger, run map[string]models.ActionRunResult) []models.ActionExecutionResult {
	var merged []models.ActionExecutionResult
	seen := make(map[string]bool)

	if prior != nil {
		for _, prev := range prior.ActionExecutionResults {
			seen[prev.ActionID] = true
			res, ok := run[prev.ActionID]
			if ok {
				if res.Throttled {
					prev.ThrottledCount++
				} else {
					prev.LastExecutionTime = res.ExecutionTime
				}
			}
			merged = append(merged, prev)
		}
	}

	for _, action := range trig.Actions {
		if seen[action.ID] {
			continue
		}
		res, ok := run[action.ID]
		if !ok {
			continue
		}
		count := 0
		if res.Throttled {
			count = 1
		}
		merged = append(merged, models.ActionExecutionResult{
			ActionID:          action.ID,
			LastExecutionTime: res.ExecutionTime,
			ThrottledCount:    count,
		})
	}

	return merged
}

// mergeErrorHistory prepends the new error, if any, to the prior history and
// caps the result at the most recent entries, newest first.
func mergeErrorHistory(prior *models.Alert, alertError error, now time.Time) []models.AlertError {
	var history []models.AlertError
	if prior != nil && len(prior.ErrorHistory) > 0 {
		history = append(history, prior.ErrorHistory...)
	}
	if alertError == nil {
		return history
	}

	merged := append([]models.AlertError{{Timestamp: now, Message: alertError.Error()}}, history...)
	if len(merged) > errorHistoryLimit {
		merged = merged[:errorHistoryLimit]
	}
	return merged
}
