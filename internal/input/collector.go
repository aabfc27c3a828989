// Package input executes a monitor's query-shaped inputs against the cluster
// and converts the responses into generic result maps.
package input

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/searchlight-alerting/searchlight/internal/models"
	"github.com/searchlight-alerting/searchlight/pkg/escluster"
)

// UnsupportedInputError marks an input variant the runner cannot execute.
// It is a programmer/configuration error and aborts the monitor run.
type UnsupportedInputError struct {
	Variant string
}

func (e *UnsupportedInputError) Error() string {
	return fmt.Sprintf("unsupported input variant %q", e.Variant)
}

// ADPredicate reports whether a monitor is an anomaly-detector monitor, which
// changes the security context its searches run under.
type ADPredicate func(*models.Monitor) bool

// Collector compiles, renders and executes search inputs.
type Collector struct {
	client      *escluster.Client
	isADMonitor ADPredicate
}

// New creates a collector. A nil predicate treats no monitor as an AD monitor.
func New(client *escluster.Client, isADMonitor ADPredicate) *Collector {
	if isADMonitor == nil {
		isADMonitor = func(*models.Monitor) bool { return false }
	}
	return &Collector{client: client, isADMonitor: isADMonitor}
}

// Collect runs every input of the monitor in order. An unsupported input
// variant returns a fatal error; any other failure is captured in the
// returned results and becomes the alert error for the run's triggers.
func (c *Collector) Collect(ctx context.Context, monitor *models.Monitor, periodStart, periodEnd time.Time) (models.InputRunResults, error) {
	results := models.InputRunResults{Results: []map[string]any{}}

	for i, in := range monitor.Inputs {
		if in.Search == nil {
			return results, &UnsupportedInputError{Variant: in.Variant()}
		}

		converted, err := c.collectSearch(ctx, monitor, *in.Search, periodStart, periodEnd)
		if err != nil {
			log.Error().Err(err).
				Str("monitorId", monitor.ID).
				Int("input", i).
				Msg("Input collection failed")
			results.Error = err
			return results, nil
		}
		results.Results = append(results.Results, converted)
	}

	return results, nil
}

func (c *Collector) collectSearch(ctx context.Context, monitor *models.Monitor, in models.SearchInput, periodStart, periodEnd time.Time) (map[string]any, error) {
	rendered, err := renderQuery(in.Query, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	var body map[string]any
	if err := json.Unmarshal(rendered, &body); err != nil {
		return nil, fmt.Errorf("rendered query is not valid JSON: %w", err)
	}

	searchCtx := escluster.WithInjectedRoles(ctx, monitor.ID, monitor.Roles())
	if c.isADMonitor(monitor) {
		// Anomaly-detector results live in a system index: stash the user
		// context and filter results down to the owner's backend roles instead.
		searchCtx = escluster.WithStashedContext(ctx)
		body = addBackendRoleFilter(body, monitor.Roles())
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Search(searchCtx, in.Indices, monitor.ID, payload)
	if err != nil {
		return nil, err
	}
	return resp.AsMap()
}

// renderQuery instantiates the input's query template with the run period.
func renderQuery(query string, periodStart, periodEnd time.Time) ([]byte, error) {
	tmpl, err := template.New("input").Parse(query)
	if err != nil {
		return nil, fmt.Errorf("compile input query template: %w", err)
	}

	params := map[string]any{
		"period_start": periodStart.UnixMilli(),
		"period_end":   periodEnd.UnixMilli(),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return nil, fmt.Errorf("render input query template: %w", err)
	}
	return buf.Bytes(), nil
}

// addBackendRoleFilter wraps the query with a terms filter on the monitor
// owner's backend roles.
func addBackendRoleFilter(body map[string]any, roles []string) map[string]any {
	filter := map[string]any{
		"terms": map[string]any{"user.backend_roles.keyword": roles},
	}

	boolQuery := map[string]any{"filter": []any{filter}}
	if orig, ok := body["query"]; ok && orig != nil {
		boolQuery["must"] = []any{orig}
	}
	body["query"] = map[string]any{"bool": boolQuery}
	return body
}
