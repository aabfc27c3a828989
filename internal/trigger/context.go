// Package trigger evaluates scripted boolean conditions over input results.
package trigger

import (
	"encoding/json"
	"time"

	"github.com/searchlight-alerting/searchlight/internal/models"
)

// ExecutionContext is the data a trigger's condition and its action templates
// are evaluated against.
type ExecutionContext struct {
	Monitor     *models.Monitor
	Trigger     models.Trigger
	Results     []map[string]any
	PeriodStart time.Time
	PeriodEnd   time.Time
	// Alert is the live alert for this trigger from the previous run, if any.
	Alert *models.Alert
	// Error is the run-level error (monitor or input) that forces an error alert.
	Error error
}

// TemplateArg converts the context into the generic structure exposed to
// condition scripts and message templates. The result is JSON-normalized so
// scripts see only maps, slices and scalars.
func (c ExecutionContext) TemplateArg() map[string]any {
	arg := map[string]any{
		"monitor": map[string]any{
			"id":      c.Monitor.ID,
			"name":    c.Monitor.Name,
			"enabled": c.Monitor.Enabled,
		},
		"trigger": map[string]any{
			"id":       c.Trigger.ID,
			"name":     c.Trigger.Name,
			"severity": c.Trigger.Severity,
		},
		"results":      c.Results,
		"period_start": c.PeriodStart.UnixMilli(),
		"period_end":   c.PeriodEnd.UnixMilli(),
	}

	if c.Alert != nil {
		arg["alert"] = map[string]any{
			"id":            c.Alert.ID,
			"state":         string(c.Alert.State),
			"error_message": c.Alert.ErrorMessage,
			"acknowledged":  c.Alert.State == models.StateAcknowledged,
		}
	} else {
		arg["alert"] = nil
	}

	if c.Error != nil {
		arg["error"] = c.Error.Error()
	} else {
		arg["error"] = nil
	}

	return normalize(arg)
}

// normalize round-trips through JSON so every nested value uses the generic
// types script engines expect (map[string]any, []any, float64, string, bool).
func normalize(in map[string]any) map[string]any {
	raw, err := json.Marshal(in)
	if err != nil {
		return in
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return in
	}
	return out
}
