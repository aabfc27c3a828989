package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/searchlight-alerting/searchlight/internal/models"
)

func testContext(condition string) ExecutionContext {
	return ExecutionContext{
		Monitor: &models.Monitor{ID: "m1", Name: "cpu monitor", Enabled: true},
		Trigger: models.Trigger{ID: "t1", Name: "cpu high", Severity: "1", Condition: condition},
		Results: []map[string]any{
			{"hits": map[string]any{"total": map[string]any{"value": float64(42)}}},
		},
		PeriodStart: time.Unix(1000, 0),
		PeriodEnd:   time.Unix(1060, 0),
	}
}

func TestEvaluatorVerdicts(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		triggered bool
	}{
		{"true literal", "true", true},
		{"false literal", "false", false},
		{"null output", "null", false},
		{"count above threshold", ".results[0].hits.total.value > 10", true},
		{"count below threshold", ".results[0].hits.total.value > 100", false},
		{"non-boolean truthy output", ".results[0].hits.total.value", true},
		{"missing path yields null", ".results[0].no_such_field", false},
	}

	var e Evaluator
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := e.Run(context.Background(), testContext(tc.condition))
			if result.Error != nil {
				t.Fatalf("unexpected error: %v", result.Error)
			}
			if result.Triggered != tc.triggered {
				t.Errorf("condition %q: triggered = %v, want %v", tc.condition, result.Triggered, tc.triggered)
			}
		})
	}
}

func TestEvaluatorCompileFailureForcesTriggered(t *testing.T) {
	var e Evaluator
	result := e.Run(context.Background(), testContext(".results[0] |"))

	if !result.Triggered {
		t.Error("expected a compile failure to force triggered")
	}
	if result.Error == nil {
		t.Error("expected a compile error")
	}
}

func TestEvaluatorRuntimeFailureForcesTriggered(t *testing.T) {
	var e Evaluator
	result := e.Run(context.Background(), testContext(`.results[0].hits.total.value + "text"`))

	if !result.Triggered {
		t.Error("expected a runtime failure to force triggered")
	}
	if result.Error == nil {
		t.Error("expected a runtime error")
	}
}

func TestTemplateArg(t *testing.T) {
	tctx := testContext("true")
	now := time.Unix(2000, 0)
	tctx.Alert = &models.Alert{
		ID:           "a1",
		State:        models.StateAcknowledged,
		ErrorMessage: "old failure",
		StartTime:    now,
	}
	tctx.Error = errors.New("input broke")

	arg := tctx.TemplateArg()

	monitor, ok := arg["monitor"].(map[string]any)
	if !ok {
		t.Fatalf("monitor is %T, want map", arg["monitor"])
	}
	if monitor["id"] != "m1" {
		t.Errorf("monitor id = %v", monitor["id"])
	}

	if arg["period_start"] != float64(time.Unix(1000, 0).UnixMilli()) {
		t.Errorf("period_start = %v", arg["period_start"])
	}

	alert, ok := arg["alert"].(map[string]any)
	if !ok {
		t.Fatalf("alert is %T, want map", arg["alert"])
	}
	if alert["acknowledged"] != true {
		t.Errorf("acknowledged = %v, want true", alert["acknowledged"])
	}
	if alert["error_message"] != "old failure" {
		t.Errorf("error_message = %v", alert["error_message"])
	}

	if arg["error"] != "input broke" {
		t.Errorf("error = %v", arg["error"])
	}
}

func TestTemplateArgWithoutAlert(t *testing.T) {
	arg := testContext("true").TemplateArg()

	if arg["alert"] != nil {
		t.Errorf("alert = %v, want nil", arg["alert"])
	}
	if arg["error"] != nil {
		t.Errorf("error = %v, want nil", arg["error"])
	}
}
