package schedule

import (
	"testing"
	"time"

	"github.com/searchlight-alerting/searchlight/internal/models"
)

type capturedJob struct {
	monitor     *models.Monitor
	periodStart time.Time
	periodEnd   time.Time
}

type fakeRunner struct {
	jobs []capturedJob
}

func (f *fakeRunner) RunJob(job any, periodStart, periodEnd time.Time) error {
	f.jobs = append(f.jobs, capturedJob{job.(*models.Monitor), periodStart, periodEnd})
	return nil
}

func minuteMonitor(id string, enabled bool) *models.Monitor {
	return &models.Monitor{
		ID:       id,
		Name:     "monitor " + id,
		Enabled:  enabled,
		Schedule: models.Schedule{PeriodMinutes: 1},
	}
}

func TestFirstTickRunsDueMonitors(t *testing.T) {
	runner := &fakeRunner{}
	monitors := []*models.Monitor{
		minuteMonitor("m1", true),
		minuteMonitor("m2", false),
		{Name: "unsaved", Enabled: true, Schedule: models.Schedule{PeriodMinutes: 1}},
	}
	s := New(func() []*models.Monitor { return monitors }, runner)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.tick(now)

	if len(runner.jobs) != 1 {
		t.Fatalf("expected only the enabled saved monitor to run, got %d jobs", len(runner.jobs))
	}
	job := runner.jobs[0]
	if job.monitor.ID != "m1" {
		t.Errorf("monitor = %s", job.monitor.ID)
	}
	if !job.periodEnd.Equal(now) {
		t.Errorf("period end = %v", job.periodEnd)
	}
	if !job.periodStart.Equal(now.Add(-time.Minute)) {
		t.Errorf("first run period start = %v, want one interval back", job.periodStart)
	}
}

func TestPeriodsAreContiguous(t *testing.T) {
	runner := &fakeRunner{}
	monitors := []*models.Monitor{minuteMonitor("m1", true)}
	s := New(func() []*models.Monitor { return monitors }, runner)

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.tick(first)

	// Not due yet.
	s.tick(first.Add(30 * time.Second))
	if len(runner.jobs) != 1 {
		t.Fatalf("monitor ran before its interval elapsed: %d jobs", len(runner.jobs))
	}

	// Tick drifted past the interval.
	second := first.Add(75 * time.Second)
	s.tick(second)
	if len(runner.jobs) != 2 {
		t.Fatalf("expected a second run, got %d jobs", len(runner.jobs))
	}

	job := runner.jobs[1]
	if !job.periodStart.Equal(first) {
		t.Errorf("period start = %v, want the previous run time %v", job.periodStart, first)
	}
	if !job.periodEnd.Equal(second) {
		t.Errorf("period end = %v", job.periodEnd)
	}
}

func TestForgetResetsSchedule(t *testing.T) {
	runner := &fakeRunner{}
	monitors := []*models.Monitor{minuteMonitor("m1", true)}
	s := New(func() []*models.Monitor { return monitors }, runner)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.tick(now)
	s.Forget("m1")
	s.tick(now.Add(time.Second))

	if len(runner.jobs) != 2 {
		t.Fatalf("expected a rerun after Forget, got %d jobs", len(runner.jobs))
	}
}
