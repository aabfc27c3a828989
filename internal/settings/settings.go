// Package settings holds the hot-reloadable runtime configuration. The active
// settings live behind a single-writer atomic pointer: the watcher replaces
// the snapshot, readers take it once per use and keep it for the duration of
// the operation they started.
package settings

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/searchlight-alerting/searchlight/internal/retry"
)

// Defaults mirror the shipped configuration.
const (
	DefaultAlertBackoffMillis     = 50 * time.Millisecond
	DefaultAlertBackoffCount      = 2
	DefaultMoveAlertsBackoffMillis = 250 * time.Millisecond
	DefaultMoveAlertsBackoffCount  = 3
)

// AWSSettings is the SNS credential snapshot, read per publish.
type AWSSettings struct {
	AccessKey  string
	SecretKey  string
	SNSEnabled bool
}

// Settings is one immutable configuration snapshot.
type Settings struct {
	ClusterURL       string
	ClusterUsername  string
	ClusterPassword  string
	ClusterVerifySSL bool
	HistoryEnabled   bool

	AlertBackoffMillis      time.Duration
	AlertBackoffCount       int
	MoveAlertsBackoffMillis time.Duration
	MoveAlertsBackoffCount  int

	AllowList    []string
	HostDenyList []string
	AWS          AWSSettings

	LogLevel  string
	LogFormat string
}

// DefaultAllowList permits every supported destination type.
var DefaultAllowList = []string{"webhook", "slack", "chime", "sns"}

// Default returns the settings applied when no configuration file exists.
func Default() Settings {
	return Settings{
		ClusterVerifySSL:        true,
		HistoryEnabled:          true,
		AlertBackoffMillis:      DefaultAlertBackoffMillis,
		AlertBackoffCount:       DefaultAlertBackoffCount,
		MoveAlertsBackoffMillis: DefaultMoveAlertsBackoffMillis,
		MoveAlertsBackoffCount:  DefaultMoveAlertsBackoffCount,
		AllowList:               append([]string(nil), DefaultAllowList...),
	}
}

// FromEnv builds a snapshot from a parsed settings file, falling back to
// defaults for absent or malformed values.
func FromEnv(env map[string]string) Settings {
	s := Default()

	if v := strings.TrimSpace(env["CLUSTER_URL"]); v != "" {
		s.ClusterURL = v
	}
	s.ClusterUsername = strings.TrimSpace(env["CLUSTER_USERNAME"])
	s.ClusterPassword = strings.TrimSpace(env["CLUSTER_PASSWORD"])
	if v, ok := parseBool(env["CLUSTER_VERIFY_SSL"]); ok {
		s.ClusterVerifySSL = v
	}
	if v, ok := parseBool(env["ALERT_HISTORY_ENABLED"]); ok {
		s.HistoryEnabled = v
	}
	if v, ok := parseMillis(env["ALERT_BACKOFF_MILLIS"]); ok {
		s.AlertBackoffMillis = v
	}
	if v, ok := parseCount(env["ALERT_BACKOFF_COUNT"]); ok {
		s.AlertBackoffCount = v
	}
	if v, ok := parseMillis(env["MOVE_ALERTS_BACKOFF_MILLIS"]); ok {
		s.MoveAlertsBackoffMillis = v
	}
	if v, ok := parseCount(env["MOVE_ALERTS_BACKOFF_COUNT"]); ok {
		s.MoveAlertsBackoffCount = v
	}
	if v := strings.TrimSpace(env["DESTINATION_ALLOW_LIST"]); v != "" {
		s.AllowList = splitList(v)
	}
	if v := strings.TrimSpace(env["DESTINATION_HOST_DENY_LIST"]); v != "" {
		s.HostDenyList = splitList(v)
	}
	s.AWS.AccessKey = strings.TrimSpace(env["DESTINATION_SNS_ACCESS_KEY"])
	s.AWS.SecretKey = strings.TrimSpace(env["DESTINATION_SNS_SECRET_KEY"])
	if v, ok := parseBool(env["DESTINATION_SNS_ENABLED"]); ok {
		s.AWS.SNSEnabled = v
	}
	if v := strings.TrimSpace(env["LOG_LEVEL"]); v != "" {
		s.LogLevel = v
	}
	if v := strings.TrimSpace(env["LOG_FORMAT"]); v != "" {
		s.LogFormat = v
	}

	return s
}

// AlertBackoff returns the constant policy used for alert-save bulk retries.
func (s Settings) AlertBackoff() retry.Policy {
	return retry.Constant(s.AlertBackoffMillis, s.AlertBackoffCount)
}

// MoveAlertsBackoff returns the exponential policy used for alert moves.
func (s Settings) MoveAlertsBackoff() retry.Policy {
	return retry.Exponential(s.MoveAlertsBackoffMillis, s.MoveAlertsBackoffCount)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(v string) (bool, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func parseMillis(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}

func parseCount(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Store publishes settings snapshots to the pipeline.
type Store struct {
	current atomic.Pointer[Settings]
}

// NewStore returns a store seeded with the given snapshot.
func NewStore(s Settings) *Store {
	st := &Store{}
	st.Replace(s)
	return st
}

// Snapshot returns the active settings. The returned value must not be mutated.
func (st *Store) Snapshot() Settings {
	return *st.current.Load()
}

// Replace atomically installs a new snapshot. In-flight operations keep the
// snapshot they started with.
func (st *Store) Replace(s Settings) {
	st.current.Store(&s)
}
