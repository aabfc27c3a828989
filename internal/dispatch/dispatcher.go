// Package dispatch renders and delivers a trigger's actions, applying
// acknowledgement and throttling policies.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	wildcard "github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog/log"

	"github.com/searchlight-alerting/searchlight/internal/metrics"
	"github.com/searchlight-alerting/searchlight/internal/models"
	"github.com/searchlight-alerting/searchlight/internal/settings"
	"github.com/searchlight-alerting/searchlight/internal/trigger"
)

// ErrEmptyMessage is returned when an action's message template renders blank.
var ErrEmptyMessage = errors.New("Message content missing")

// Destinations resolves destination configurations and publishes to them.
type Destinations interface {
	Get(id string) (models.Destination, error)
	Publish(ctx context.Context, dest models.Destination, subject, message string, aws settings.AWSSettings, denyList []string) (string, error)
}

// Dispatcher executes a trigger's actions.
type Dispatcher struct {
	destinations Destinations
	settings     *settings.Store
}

// New creates a dispatcher.
func New(destinations Destinations, st *settings.Store) *Dispatcher {
	return &Dispatcher{destinations: destinations, settings: st}
}

// IsTriggerActionable reports whether a trigger run should dispatch actions.
// An acknowledged alert suppresses actions unless there is a new error.
func IsTriggerActionable(tctx trigger.ExecutionContext, result models.TriggerRunResult) bool {
	if !result.Triggered {
		return false
	}
	suppressed := tctx.Alert != nil &&
		tctx.Alert.State == models.StateAcknowledged &&
		result.Error == nil &&
		tctx.Error == nil
	return !suppressed
}

// IsActionActionable applies the action's throttle window against the prior
// alert's execution record.
func IsActionActionable(action models.Action, alert *models.Alert, now time.Time) bool {
	if alert == nil || action.Throttle == nil || !action.Throttle.Enabled {
		return true
	}
	prev := alert.ActionResult(action.ID)
	if prev == nil || prev.LastExecutionTime == nil {
		return true
	}
	return prev.LastExecutionTime.Before(now.Add(-action.Throttle.Duration()))
}

// RunAction renders and publishes one action. Failures are recorded on the
// returned result, never propagated: a broken channel must not mask trigger
// signal. Dryrun renders but skips the publish.
func (d *Dispatcher) RunAction(ctx context.Context, action models.Action, tctx trigger.ExecutionContext, dryrun bool) models.ActionRunResult {
	result := models.ActionRunResult{
		ActionID:   action.ID,
		ActionName: action.Name,
		Output:     map[string]string{},
	}

	if !IsActionActionable(action, tctx.Alert, time.Now()) {
		result.Throttled = true
		metrics.RecordAction("throttled")
		return result
	}

	executionTime := time.Now()
	result.ExecutionTime = &executionTime

	params := map[string]any{"ctx": tctx.TemplateArg()}

	subject, err := render("subject", action.SubjectTemplate, params)
	if err != nil {
		return d.failed(result, action, fmt.Errorf("render subject template: %w", err))
	}
	message, err := render("message", action.MessageTemplate, params)
	if err != nil {
		return d.failed(result, action, fmt.Errorf("render message template: %w", err))
	}
	if strings.TrimSpace(message) == "" {
		return d.failed(result, action, ErrEmptyMessage)
	}

	result.Output["subject"] = subject
	result.Output["message"] = message

	if dryrun {
		return result
	}

	snapshot := d.settings.Snapshot()

	dest, err := d.destinations.Get(action.DestinationID)
	if err != nil {
		return d.failed(result, action, err)
	}
	if !typeAllowed(dest.Type, snapshot.AllowList) {
		return d.failed(result, action, fmt.Errorf("destination type %q is not allowed", dest.Type))
	}

	messageID, err := d.destinations.Publish(ctx, dest, subject, message, snapshot.AWS, snapshot.HostDenyList)
	if err != nil {
		return d.failed(result, action, err)
	}

	result.Output["message_id"] = messageID
	metrics.RecordAction("published")
	return result
}

func (d *Dispatcher) failed(result models.ActionRunResult, action models.Action, err error) models.ActionRunResult {
	log.Error().Err(err).
		Str("actionId", action.ID).
		Str("action", action.Name).
		Msg("Action dispatch failed")
	result.Error = err
	metrics.RecordAction("failed")
	return result
}

func typeAllowed(destType models.DestinationType, allowList []string) bool {
	for _, pattern := range allowList {
		if wildcard.Match(pattern, string(destType)) {
			return true
		}
	}
	return false
}

// render executes a message template; an empty template renders to the empty
// string.
func render(name, tmpl string, params map[string]any) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	parsed, err := template.New(name).Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, params); err != nil {
		return "", err
	}
	return buf.String(), nil
}
