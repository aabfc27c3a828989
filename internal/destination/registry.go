// Package destination resolves destination configurations and publishes
// rendered messages to them.
package destination

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/searchlight-alerting/searchlight/internal/models"
	"github.com/searchlight-alerting/searchlight/internal/settings"
)

// ErrNotFound is returned when no destination exists for an id.
var ErrNotFound = errors.New("destination not found")

// Registry is the in-memory destination catalog. It is mutated only by the
// configuration reload path and safe for concurrent readers.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]models.Destination
	sns  *snsClientPool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]models.Destination),
		sns:  newSNSClientPool(),
	}
}

// Load replaces the whole catalog.
func (r *Registry) Load(dests []models.Destination) {
	next := make(map[string]models.Destination, len(dests))
	for _, d := range dests {
		next[d.ID] = d
	}

	r.mu.Lock()
	r.byID = next
	r.mu.Unlock()
}

// Upsert adds or replaces one destination.
func (r *Registry) Upsert(d models.Destination) {
	r.mu.Lock()
	r.byID[d.ID] = d
	r.mu.Unlock()
}

// Delete removes a destination.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

// Get returns the destination with the given id.
func (r *Registry) Get(id string) (models.Destination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return models.Destination{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// Publish delivers a rendered message to the destination and returns the
// transport's message id. The host deny list is enforced here, at the last
// step before the network.
func (r *Registry) Publish(ctx context.Context, dest models.Destination, subject, message string, aws settings.AWSSettings, denyList []string) (string, error) {
	switch dest.Type {
	case models.DestinationWebhook, models.DestinationSlack, models.DestinationChime:
		return publishWebhook(ctx, dest, message, denyList)
	case models.DestinationSNS:
		return r.sns.publish(ctx, dest, subject, message, aws)
	default:
		return "", fmt.Errorf("unsupported destination type %q", dest.Type)
	}
}
