package models

import (
	"fmt"
	"time"
)

// NoID marks a monitor that has never been saved to the cluster. Test and
// preview executions run with this sentinel and never persist alerts.
const NoID = ""

// LegacyAdminRoles is the backend-role set applied to monitors created before
// ownership tracking existed (monitors with no user attached).
var LegacyAdminRoles = []string{"all_access"}

// User identifies the owner of a monitor along with the backend roles its
// searches execute with.
type User struct {
	Name         string   `json:"name"`
	BackendRoles []string `json:"backend_roles"`
}

// Schedule describes how often a monitor runs.
type Schedule struct {
	PeriodMinutes int `json:"period_minutes"`
}

// Interval returns the schedule period as a duration, defaulting to one minute.
func (s Schedule) Interval() time.Duration {
	if s.PeriodMinutes <= 0 {
		return time.Minute
	}
	return time.Duration(s.PeriodMinutes) * time.Minute
}

// Monitor is a scheduled definition combining inputs, triggers and actions.
type Monitor struct {
	ID       string    `json:"id,omitempty"`
	Name     string    `json:"name"`
	Enabled  bool      `json:"enabled"`
	User     *User     `json:"user,omitempty"`
	Schedule Schedule  `json:"schedule"`
	Inputs   []Input   `json:"inputs"`
	Triggers []Trigger `json:"triggers"`
}

// Roles returns the backend roles the monitor's searches run with. Monitors
// without an owning user fall back to the legacy admin role list.
func (m *Monitor) Roles() []string {
	if m.User == nil {
		return LegacyAdminRoles
	}
	return m.User.BackendRoles
}

// Trigger returns the trigger with the given id, or nil.
func (m *Monitor) Trigger(id string) *Trigger {
	for i := range m.Triggers {
		if m.Triggers[i].ID == id {
			return &m.Triggers[i]
		}
	}
	return nil
}

// Input is a tagged variant. The runner only executes the search variant;
// inputs with no recognized variant are rejected at collection time.
type Input struct {
	Search *SearchInput `json:"search,omitempty"`
}

// Variant names the populated input variant for error messages.
func (in Input) Variant() string {
	if in.Search != nil {
		return "search"
	}
	return "unknown"
}

// SearchInput is a templated query executed against a set of index patterns.
type SearchInput struct {
	Indices []string `json:"indices"`
	Query   string   `json:"query"`
}

// Trigger is a boolean condition over input results with an ordered action list.
type Trigger struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Severity  string   `json:"severity,omitempty"`
	Condition string   `json:"condition"`
	Actions   []Action `json:"actions"`
}

// Action is a rendered message delivery to an external destination.
type Action struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DestinationID   string    `json:"destination_id"`
	SubjectTemplate string    `json:"subject_template,omitempty"`
	MessageTemplate string    `json:"message_template"`
	Throttle        *Throttle `json:"throttle,omitempty"`
}

// Throttle suppresses repeated dispatches of an action inside a time window.
type Throttle struct {
	Value   int    `json:"value"`
	Unit    string `json:"unit"`
	Enabled bool   `json:"enabled"`
}

// Duration converts the throttle window into a duration. Unknown units are
// treated as minutes.
func (t Throttle) Duration() time.Duration {
	switch t.Unit {
	case "seconds", "SECONDS":
		return time.Duration(t.Value) * time.Second
	case "hours", "HOURS":
		return time.Duration(t.Value) * time.Hour
	case "days", "DAYS":
		return time.Duration(t.Value) * 24 * time.Hour
	default:
		return time.Duration(t.Value) * time.Minute
	}
}

// Validate performs the structural checks the runner depends on.
func (m *Monitor) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("monitor name is required")
	}
	if len(m.Inputs) == 0 {
		return fmt.Errorf("monitor %q has no inputs", m.Name)
	}
	seen := make(map[string]bool, len(m.Triggers))
	for _, tr := range m.Triggers {
		if tr.ID == "" {
			return fmt.Errorf("monitor %q has a trigger without an id", m.Name)
		}
		if seen[tr.ID] {
			return fmt.Errorf("monitor %q has duplicate trigger id %q", m.Name, tr.ID)
		}
		seen[tr.ID] = true
	}
	return nil
}
