package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/searchlight-alerting/searchlight/internal/destination"
	"github.com/searchlight-alerting/searchlight/internal/models"
	"github.com/searchlight-alerting/searchlight/internal/runner"
)

// catalog holds the monitor definitions loaded from the config directory and
// diffs reloads so stale alerts get swept when a monitor changes or goes away.
type catalog struct {
	mu       sync.RWMutex
	monitors map[string]*models.Monitor
}

func newCatalog() *catalog {
	return &catalog{monitors: make(map[string]*models.Monitor)}
}

// Monitors returns the current monitor list for the scheduler.
func (c *catalog) Monitors() []*models.Monitor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.Monitor, 0, len(c.monitors))
	for _, m := range c.monitors {
		out = append(out, m)
	}
	return out
}

func (c *catalog) reload(configDir string, registry *destination.Registry, run *runner.Runner) error {
	dests, err := loadDestinations(filepath.Join(configDir, destinationsFile))
	if err != nil {
		return err
	}
	registry.Load(dests)

	monitors, err := loadMonitors(filepath.Join(configDir, monitorsFile))
	if err != nil {
		return err
	}

	next := make(map[string]*models.Monitor, len(monitors))
	for _, m := range monitors {
		next[m.ID] = m
	}

	c.mu.Lock()
	prev := c.monitors
	c.monitors = next
	c.mu.Unlock()

	for id, old := range prev {
		updated, ok := next[id]
		switch {
		case !ok:
			run.PostDelete(id)
		case !reflect.DeepEqual(old.Triggers, updated.Triggers):
			run.PostIndex(updated)
		}
	}

	log.Info().
		Int("monitors", len(next)).
		Int("destinations", len(dests)).
		Msg("Loaded monitor definitions")
	return nil
}

func loadMonitors(path string) ([]*models.Monitor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var monitors []*models.Monitor
	if err := json.Unmarshal(raw, &monitors); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, m := range monitors {
		if m.ID == models.NoID {
			return nil, fmt.Errorf("monitor %q has no id", m.Name)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("invalid monitor in %s: %w", path, err)
		}
	}
	return monitors, nil
}

func loadDestinations(path string) ([]models.Destination, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var dests []models.Destination
	if err := json.Unmarshal(raw, &dests); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return dests, nil
}
