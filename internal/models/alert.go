package models

import "time"

// AlertState is the lifecycle state of an alert document.
type AlertState string

const (
	StateActive       AlertState = "ACTIVE"
	StateAcknowledged AlertState = "ACKNOWLEDGED"
	StateCompleted    AlertState = "COMPLETED"
	StateError        AlertState = "ERROR"
	StateDeleted      AlertState = "DELETED"
)

// AlertSchemaVersion is stamped on every alert the runner writes.
const AlertSchemaVersion = 1

// AlertError is one entry in an alert's bounded error history.
type AlertError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// ActionExecutionResult tracks when an action last fired for an alert and how
// often it has been throttled since.
type ActionExecutionResult struct {
	ActionID          string     `json:"action_id"`
	LastExecutionTime *time.Time `json:"last_execution_time,omitempty"`
	ThrottledCount    int        `json:"throttled_count"`
}

// Alert is the durable record of a trigger's firing state. Identity across
// runs is the (monitor id, trigger id) pair; the document id is assigned by
// the cluster on first insert.
type Alert struct {
	ID                     string                  `json:"-"`
	SchemaVersion          int                     `json:"schema_version"`
	MonitorID              string                  `json:"monitor_id"`
	MonitorName            string                  `json:"monitor_name"`
	TriggerID              string                  `json:"trigger_id"`
	TriggerName            string                  `json:"trigger_name"`
	Severity               string                  `json:"severity,omitempty"`
	State                  AlertState              `json:"state"`
	StartTime              time.Time               `json:"start_time"`
	LastNotificationTime   *time.Time              `json:"last_notification_time,omitempty"`
	EndTime                *time.Time              `json:"end_time,omitempty"`
	AcknowledgedTime       *time.Time              `json:"acknowledged_time,omitempty"`
	ErrorMessage           string                  `json:"error_message,omitempty"`
	ErrorHistory           []AlertError            `json:"alert_history"`
	ActionExecutionResults []ActionExecutionResult `json:"action_execution_results"`
}

// Clone returns a deep copy of the alert so it can be safely mutated without
// affecting the loaded document.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}

	clone := *a

	if a.LastNotificationTime != nil {
		t := *a.LastNotificationTime
		clone.LastNotificationTime = &t
	}
	if a.EndTime != nil {
		t := *a.EndTime
		clone.EndTime = &t
	}
	if a.AcknowledgedTime != nil {
		t := *a.AcknowledgedTime
		clone.AcknowledgedTime = &t
	}
	if len(a.ErrorHistory) > 0 {
		clone.ErrorHistory = append([]AlertError(nil), a.ErrorHistory...)
	}
	if len(a.ActionExecutionResults) > 0 {
		clone.ActionExecutionResults = make([]ActionExecutionResult, len(a.ActionExecutionResults))
		for i, r := range a.ActionExecutionResults {
			if r.LastExecutionTime != nil {
				t := *r.LastExecutionTime
				r.LastExecutionTime = &t
			}
			clone.ActionExecutionResults[i] = r
		}
	}

	return &clone
}

// ActionResult returns the execution result for the given action id, or nil.
func (a *Alert) ActionResult(actionID string) *ActionExecutionResult {
	if a == nil {
		return nil
	}
	for i := range a.ActionExecutionResults {
		if a.ActionExecutionResults[i].ActionID == actionID {
			return &a.ActionExecutionResults[i]
		}
	}
	return nil
}
