package trigger

import (
	"context"
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/searchlight-alerting/searchlight/internal/models"
)

// Evaluator compiles and runs trigger condition scripts. Conditions are jq
// expressions evaluated against the trigger execution context; the first
// output decides the verdict (false and null are not triggered, everything
// else is).
type Evaluator struct{}

// Run evaluates the trigger's condition. A compile or runtime failure forces
// triggered=true with the error captured so the failure becomes visible as an
// error alert.
func (e Evaluator) Run(ctx context.Context, tctx ExecutionContext) models.TriggerRunResult {
	result := models.TriggerRunResult{
		TriggerName:   tctx.Trigger.Name,
		ActionResults: map[string]models.ActionRunResult{},
	}

	query, err := gojq.Parse(tctx.Trigger.Condition)
	if err != nil {
		result.Triggered = true
		result.Error = fmt.Errorf("compile trigger condition: %w", err)
		return result
	}

	iter := query.RunWithContext(ctx, tctx.TemplateArg())
	v, ok := iter.Next()
	if !ok {
		// No output is a vacuous false.
		return result
	}
	if err, isErr := v.(error); isErr {
		result.Triggered = true
		result.Error = fmt.Errorf("run trigger condition: %w", err)
		return result
	}

	result.Triggered = v != nil && v != false
	return result
}
