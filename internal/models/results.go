package models

import "time"

// InputRunResults carries the collected input documents for one monitor run.
// A collection failure is recorded here and becomes the alert error for every
// trigger of the run.
type InputRunResults struct {
	Results []map[string]any
	Error   error
}

// ActionRunResult records one action dispatch attempt within a trigger run.
type ActionRunResult struct {
	ActionID      string
	ActionName    string
	Output        map[string]string
	Throttled     bool
	ExecutionTime *time.Time
	Error         error
}

// TriggerRunResult records the evaluation of one trigger and its actions.
type TriggerRunResult struct {
	TriggerName   string
	Triggered     bool
	Error         error
	ActionResults map[string]ActionRunResult
}

// MonitorRunResult aggregates one invocation of the runner for a monitor.
type MonitorRunResult struct {
	MonitorName    string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Error          error
	InputResults   InputRunResults
	TriggerResults map[string]TriggerRunResult
}

// AlertError collapses the run-level failures that force an error alert:
// a monitor-level error wins over an input collection error.
func (r MonitorRunResult) AlertError() error {
	if r.Error != nil {
		return r.Error
	}
	return r.InputResults.Error
}
