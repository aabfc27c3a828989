// Package schedule drives periodic monitor executions off a single ticker.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/searchlight-alerting/searchlight/internal/models"
)

// tickInterval is how often the scheduler checks for due monitors.
const tickInterval = 15 * time.Second

// ListFunc returns the monitors eligible for scheduling.
type ListFunc func() []*models.Monitor

// JobRunner accepts due jobs from the scheduler.
type JobRunner interface {
	RunJob(job any, periodStart, periodEnd time.Time) error
}

// Scheduler fires each enabled monitor when its schedule interval has elapsed
// since the last run. The execution period spans from the previous run to now,
// so runs are contiguous even when ticks drift.
type Scheduler struct {
	list   ListFunc
	runner JobRunner

	mu      sync.Mutex
	lastRun map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler.
func New(list ListFunc, runner JobRunner) *Scheduler {
	return &Scheduler{
		list:    list,
		runner:  runner,
		lastRun: make(map[string]time.Time),
	}
}

// Start begins the tick loop. Stop with Stop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.tick(now)
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Scheduler) tick(now time.Time) {
	for _, monitor := range s.list() {
		if !monitor.Enabled || monitor.ID == models.NoID {
			continue
		}

		interval := monitor.Schedule.Interval()

		s.mu.Lock()
		last, ran := s.lastRun[monitor.ID]
		due := !ran || now.Sub(last) >= interval
		if due {
			s.lastRun[monitor.ID] = now
		}
		s.mu.Unlock()

		if !due {
			continue
		}

		periodStart := last
		if !ran {
			periodStart = now.Add(-interval)
		}

		if err := s.runner.RunJob(monitor, periodStart, now); err != nil {
			log.Error().Err(err).
				Str("monitorId", monitor.ID).
				Msg("Failed to schedule monitor run")
		}
	}
}

// Forget drops the run bookkeeping for a monitor, typically after deletion.
func (s *Scheduler) Forget(monitorID string) {
	s.mu.Lock()
	delete(s.lastRun, monitorID)
	s.mu.Unlock()
}
