// Package alertstore is the read/write gateway to the two alert indices:
// the live alert index and the write-only history index.
package alertstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/searchlight-alerting/searchlight/internal/metrics"
	"github.com/searchlight-alerting/searchlight/internal/models"
	"github.com/searchlight-alerting/searchlight/internal/settings"
	"github.com/searchlight-alerting/searchlight/pkg/escluster"
)

// Index names. The history index is write-only from the runner.
const (
	AlertIndex        = ".searchlight-alerts"
	HistoryWriteIndex = ".searchlight-alert-history-write"
)

// moveQuerySize bounds how many alerts a single move sweep considers.
const moveQuerySize = 10000

// ErrUnexpectedState is returned when a caller asks the store to persist an
// alert in a state the runner never produces. This is a programmer error.
var ErrUnexpectedState = errors.New("alert is in an unexpected state for saving")

const indexMapping = `{
  "settings": {"number_of_shards": 1},
  "mappings": {
    "properties": {
      "schema_version": {"type": "integer"},
      "monitor_id": {"type": "keyword"},
      "monitor_name": {"type": "keyword"},
      "trigger_id": {"type": "keyword"},
      "trigger_name": {"type": "keyword"},
      "state": {"type": "keyword"},
      "severity": {"type": "keyword"},
      "start_time": {"type": "date"},
      "last_notification_time": {"type": "date"},
      "end_time": {"type": "date"},
      "acknowledged_time": {"type": "date"},
      "error_message": {"type": "text"}
    }
  }
}`

// Store reads and writes alert documents, routed by monitor id.
type Store struct {
	client   *escluster.Client
	settings *settings.Store
}

// New creates an alert store.
func New(client *escluster.Client, st *settings.Store) *Store {
	return &Store{client: client, settings: st}
}

// EnsureIndexes creates the alert and history indices if they do not exist.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, index := range []string{AlertIndex, HistoryWriteIndex} {
		exists, err := s.client.IndexExists(ctx, index)
		if err != nil {
			return fmt.Errorf("check index %s: %w", index, err)
		}
		if exists {
			continue
		}
		if err := s.client.CreateIndex(ctx, index, []byte(indexMapping)); err != nil {
			return fmt.Errorf("create index %s: %w", index, err)
		}
		log.Info().Str("index", index).Msg("Created alert index")
	}
	return nil
}

// LoadCurrentAlerts returns the live alert for each of the monitor's triggers,
// keyed by trigger id. Triggers with no live alert are absent from the map.
// When more than one live alert exists for a trigger the first is used and a
// warning is logged.
func (s *Store) LoadCurrentAlerts(ctx context.Context, monitor *models.Monitor) (map[string]*models.Alert, error) {
	size := 2 * len(monitor.Triggers)
	if size < 2 {
		size = 2
	}

	body, err := json.Marshal(map[string]any{
		"size":  size,
		"query": map[string]any{"term": map[string]any{"monitor_id": monitor.ID}},
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Search(ctx, []string{AlertIndex}, monitor.ID, body)
	if err != nil {
		return nil, fmt.Errorf("load current alerts: %w", err)
	}
	if failure := resp.FirstFailure(); failure != nil {
		return nil, fmt.Errorf("load current alerts: %w", failure)
	}

	grouped := make(map[string][]*models.Alert)
	for _, hit := range resp.Hits.Hits {
		alert, err := parseAlert(hit)
		if err != nil {
			return nil, fmt.Errorf("parse alert %s: %w", hit.ID, err)
		}
		grouped[alert.TriggerID] = append(grouped[alert.TriggerID], alert)
	}

	current := make(map[string]*models.Alert, len(grouped))
	for triggerID, alerts := range grouped {
		if len(alerts) > 1 {
			log.Warn().
				Str("monitorId", monitor.ID).
				Str("triggerId", triggerID).
				Int("count", len(alerts)).
				Msg("Multiple live alerts for a single trigger, using the first")
		}
		current[triggerID] = alerts[0]
	}
	return current, nil
}

// SaveAlerts persists the given alerts, translating each into a bulk write by
// state: ACTIVE and ERROR index into the live index, COMPLETED deletes from
// the live index and, when history is enabled, copies into the history index.
// The bulk is retried under the constant policy; only items rejected with
// 429 are resubmitted.
func (s *Store) SaveAlerts(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	snapshot := s.settings.Snapshot()
	policy := snapshot.AlertBackoff()

	pending, err := translate(alerts, snapshot.HistoryEnabled)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	attempt := 0
	return policy.Do(ctx, func() error {
		attempt++
		if attempt > 1 {
			metrics.RecordBulkRetry()
		}

		resp, err := s.client.Bulk(ctx, pending)
		if err != nil {
			return err
		}

		var throttled []escluster.BulkItem
		var firstCause error
		for i, item := range resp.Items {
			switch {
			case item.Status == http.StatusTooManyRequests:
				throttled = append(throttled, pending[i])
				if firstCause == nil {
					if item.Error != nil {
						firstCause = item.Error
					} else {
						firstCause = fmt.Errorf("bulk item rejected with status %d", item.Status)
					}
				}
			case item.Error != nil:
				// Non-retriable item failures surface through the bulk
				// response; the runner run continues.
				log.Warn().
					Str("opType", item.OpType).
					Str("id", item.ID).
					Int("status", item.Status).
					Str("reason", item.Error.Reason).
					Msg("Alert bulk item failed")
			}
		}

		if len(throttled) > 0 {
			pending = throttled
			return &backpressureError{cause: firstCause}
		}
		return nil
	}, retryOnBackpressure)
}

// MoveAlerts sweeps alerts owned by stale monitor definitions out of the live
// index: alerts whose trigger no longer exists on the new definition (or all
// of the monitor's alerts when it was deleted) are copied to the history
// index and deleted from the live index.
func (s *Store) MoveAlerts(ctx context.Context, monitorID string, newMonitor *models.Monitor) error {
	body, err := json.Marshal(map[string]any{
		"size":  moveQuerySize,
		"query": map[string]any{"term": map[string]any{"monitor_id": monitorID}},
	})
	if err != nil {
		return err
	}

	resp, err := s.client.Search(ctx, []string{AlertIndex}, monitorID, body)
	if err != nil {
		if escluster.IsStatus(err, http.StatusNotFound) {
			return nil
		}
		return fmt.Errorf("move alerts: %w", err)
	}
	if failure := resp.FirstFailure(); failure != nil {
		return fmt.Errorf("move alerts: %w", failure)
	}

	var items []escluster.BulkItem
	for _, hit := range resp.Hits.Hits {
		alert, err := parseAlert(hit)
		if err != nil {
			return fmt.Errorf("move alerts: parse alert %s: %w", hit.ID, err)
		}
		if newMonitor != nil && newMonitor.Trigger(alert.TriggerID) != nil {
			continue
		}
		alert.State = models.StateDeleted
		doc, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("move alerts: %w", err)
		}
		items = append(items,
			escluster.BulkItem{
				OpType:  escluster.OpIndex,
				Index:   HistoryWriteIndex,
				ID:      alert.ID,
				Routing: monitorID,
				Doc:     doc,
			},
			escluster.BulkItem{
				OpType:  escluster.OpDelete,
				Index:   AlertIndex,
				ID:      alert.ID,
				Routing: monitorID,
			})
	}
	if len(items) == 0 {
		return nil
	}

	bulkResp, err := s.client.Bulk(ctx, items)
	if err != nil {
		return fmt.Errorf("move alerts: %w", err)
	}
	for _, item := range bulkResp.Items {
		if item.Error != nil {
			return fmt.Errorf("move alerts: %s %s: %w", item.OpType, item.ID, item.Error)
		}
	}

	log.Info().
		Str("monitorId", monitorID).
		Int("moved", len(items)/2).
		Msg("Moved stale alerts to history")
	return nil
}

func translate(alerts []*models.Alert, historyEnabled bool) ([]escluster.BulkItem, error) {
	var items []escluster.BulkItem
	for _, alert := range alerts {
		switch alert.State {
		case models.StateActive, models.StateError:
			doc, err := json.Marshal(alert)
			if err != nil {
				return nil, err
			}
			items = append(items, escluster.BulkItem{
				OpType:  escluster.OpIndex,
				Index:   AlertIndex,
				ID:      alert.ID,
				Routing: alert.MonitorID,
				Doc:     doc,
			})

		case models.StateCompleted:
			items = append(items, escluster.BulkItem{
				OpType:  escluster.OpDelete,
				Index:   AlertIndex,
				ID:      alert.ID,
				Routing: alert.MonitorID,
			})
			if historyEnabled {
				doc, err := json.Marshal(alert)
				if err != nil {
					return nil, err
				}
				items = append(items, escluster.BulkItem{
					OpType:  escluster.OpIndex,
					Index:   HistoryWriteIndex,
					ID:      alert.ID,
					Routing: alert.MonitorID,
					Doc:     doc,
				})
			}

		default:
			return nil, fmt.Errorf("%w: %s is %s", ErrUnexpectedState, alert.TriggerID, alert.State)
		}
		metrics.RecordAlertWritten(string(alert.State))
	}
	return items, nil
}

func parseAlert(hit escluster.Hit) (*models.Alert, error) {
	var alert models.Alert
	if err := json.Unmarshal(hit.Source, &alert); err != nil {
		return nil, err
	}
	alert.ID = hit.ID
	return &alert, nil
}

// backpressureError marks a bulk attempt that left 429-rejected items behind.
type backpressureError struct {
	cause error
}

func (e *backpressureError) Error() string {
	return fmt.Sprintf("bulk write rejected on backpressure: %v", e.cause)
}

func (e *backpressureError) Unwrap() error { return e.cause }

func retryOnBackpressure(err error) bool {
	var bp *backpressureError
	if errors.As(err, &bp) {
		return true
	}
	return escluster.IsStatus(err, http.StatusTooManyRequests)
}
